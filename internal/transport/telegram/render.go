package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"trivia-service/internal/domain"
)

// Reply is a rendered message.
type Reply struct {
	Text   string
	Mode   tele.ParseMode
	Markup *tele.ReplyMarkup
}

func (r Reply) options() []interface{} {
	opts := &tele.SendOptions{ParseMode: r.Mode, ReplyMarkup: r.Markup}
	return []interface{}{opts}
}

func plain(text string) Reply {
	return Reply{Text: text}
}

func markdown(text string) Reply {
	return Reply{Text: text, Mode: tele.ModeMarkdown}
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escapeMarkdown protects user supplied text inside legacy Markdown messages.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func modeTag(scope domain.Scope) string {
	if scope == domain.ScopePersonal {
		return "Личный"
	}
	return "Групповой"
}

// points renders a score with the matching Russian plural form.
func points(n int) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs%100 >= 11 && abs%100 <= 14:
		return fmt.Sprintf("%d очков", n)
	case abs%10 == 1:
		return fmt.Sprintf("%d очко", n)
	case abs%10 >= 2 && abs%10 <= 4:
		return fmt.Sprintf("%d очка", n)
	default:
		return fmt.Sprintf("%d очков", n)
	}
}

func seriesLength(total int) string {
	if total == domain.Unlimited {
		return "∞"
	}
	return fmt.Sprint(total)
}

// Render turns an engine notification into chat text.
func Render(n domain.Notification) Reply {
	tag := modeTag(n.Scope)
	switch n.Kind {
	case domain.NoticeQuestion:
		return markdown(fmt.Sprintf("🧠 *[%s]* Вопрос %d/%s:\n\n*%s*",
			tag, n.Asked, seriesLength(n.Total), escapeMarkdown(n.Question)))
	case domain.NoticeFormat:
		return plain(fmt.Sprintf("📝 Формат ответа [%s] (%d букв): %s",
			tag, len(n.Pattern), strings.Join(n.Pattern, " ")))
	case domain.NoticeHint:
		label := "Подсказка"
		if n.Manual {
			label = "Ручная подсказка"
		}
		return plain(fmt.Sprintf("💡 %s [%s]: %s", label, tag, strings.Join(n.Pattern, " ")))
	case domain.NoticeTimeout:
		return markdown(fmt.Sprintf("⌛ Время вышло! [%s] Никто не угадал. Правильный ответ: *%s* 😭",
			tag, escapeMarkdown(n.Answer)))
	case domain.NoticeCorrect:
		return plain(fmt.Sprintf("🚀 Поздравляем! Это верный ответ. Ты получаешь +%s! 🎉", points(n.Points)))
	case domain.NoticeSkipped:
		return plain("➡️ Вопрос пропущен.")
	case domain.NoticeCompleted:
		text := fmt.Sprintf("🥳 Серия вопросов завершена! *[%s режим]*", tag)
		if n.HasScore {
			text += fmt.Sprintf(" Твой текущий счет: *%s*.", points(n.Score))
		}
		text += "\n\nНажми /quiz, чтобы выбрать новую серию, или /top, чтобы увидеть всех лидеров!"
		return markdown(text)
	case domain.NoticeStopped:
		kind := "Групповая"
		if n.Scope == domain.ScopePersonal {
			kind = "Личная"
		}
		return plain(fmt.Sprintf("👋 %s викторина успешно завершена. Ждём тебя снова!", kind))
	case domain.NoticeEmptySource:
		return plain("💔 Извините, в базе данных больше нет вопросов.")
	default:
		return Reply{}
	}
}

// RenderLeaderboard lists the top players with medals.
func RenderLeaderboard(entries []domain.LeaderboardEntry) Reply {
	var b strings.Builder
	b.WriteString("👑 ТОП-5 ЛИДЕРОВ ВИКТОРИНЫ 🚀\n\n")
	if len(entries) == 0 {
		b.WriteString("Пока никто не набрал очков.")
	}
	for i, e := range entries {
		medal := "🏅"
		switch i {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		name := e.DisplayName
		if name == "" {
			name = "Без имени"
		}
		fmt.Fprintf(&b, "%s %d. <b>%s</b> — %s\n", medal, i+1, html.EscapeString(name), points(e.Score))
	}
	return Reply{Text: b.String(), Mode: tele.ModeHTML}
}

// showAllLimit keeps the listing under Telegram's message size.
const showAllLimit = 3500

// RenderQuestionList lists the bank for the admin, truncated to fit one message.
func RenderQuestionList(questions []domain.Question) Reply {
	if len(questions) == 0 {
		return plain("⚠️ В базе данных нет вопросов.")
	}
	var b strings.Builder
	b.WriteString("📋 *ВСЕ ВОПРОСЫ ИЗ БАЗЫ ДАННЫХ* 💾\n\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "*%d. Вопрос (ID %d)*:\n❓ %s\n✅ *Ответ*: %s\n-----\n",
			q.ID, q.ID, escapeMarkdown(q.Text), escapeMarkdown(q.Answer))
		if utf8.RuneCountInString(b.String()) > showAllLimit {
			b.WriteString("\n... (Показана только часть вопросов из-за ограничения длины сообщения Telegram)")
			break
		}
	}
	return markdown(b.String())
}

const helpText = "📚 *СПИСОК КОМАНД ВИКТОРИНЫ* 🧐\n\n" +
	"--- *Для всех пользователей* ---\n" +
	"*/start* — Приветствие и регистрация.\n" +
	"*/quiz* — Начать новую серию вопросов. Сначала выбери режим (личный/групповой), затем количество вопросов.\n" +
	"*/setname Имя* — ✏️ Сменить имя, отображаемое в таблице лидеров.\n" +
	"*/stop* — Остановить твою личную или начатую тобой групповую викторину.\n" +
	"*/hint* — 💡 Получить ручную подсказку, раскрыв одну случайную букву. Доступно всем в групповом режиме.\n" +
	"*/skip* — ➡️ Пропустить текущий вопрос. Только для инициатора викторины.\n" +
	"*/top* — 👑 Посмотреть таблицу лидеров.\n" +
	"*/help* — Показать это сообщение со списком команд.\n" +
	"*/removekeyboard* — ✖️ Убрать постоянную клавиатуру с командами.\n\n" +
	"--- *Для администратора* ---\n" +
	"*/add Вопрос?;Ответ* — 💾 Добавить новый вопрос в базу данных.\n" +
	"*/delete ID* — 🗑 Удалить вопрос из базы данных по его ID.\n" +
	"*/showall* — 📋 Показать все вопросы, их ID и ответы."
