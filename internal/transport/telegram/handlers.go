package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Game is the engine surface the bot drives.
type Game interface {
	Start(ctx context.Context, req app.StartRequest) (app.SessionView, error)
	Answer(ctx context.Context, participantID, chatID int64, text string) (app.AnswerResult, error)
	Hint(ctx context.Context, participantID, chatID int64) (app.HintResult, error)
	Skip(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error)
	Stop(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error)
}

// Handlers turns chat commands into engine and catalog calls. Outcomes the engine announces
// itself (questions, hints, answers) come back through the Notifier, so successful commands
// often reply with nothing.
type Handlers struct {
	game    Game
	catalog *app.Catalog
	adminID int64
	log     *slog.Logger
}

func NewHandlers(game Game, catalog *app.Catalog, adminID int64, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{game: game, catalog: catalog, adminID: adminID, log: log}
}

var errorReply = plain("❌ Что-то пошло не так. Попробуй ещё раз чуть позже.")

// DisplayName prefers first and last name and falls back to the username.
func DisplayName(u *tele.User) string {
	if u == nil {
		return "Неизвестный пользователь"
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "Неизвестный пользователь"
	}
}

func (h *Handlers) register(ctx context.Context, u *tele.User) {
	if err := h.catalog.RegisterPlayer(ctx, u.ID, DisplayName(u)); err != nil {
		h.log.Error("register player", "user", u.ID, "err", err)
	}
}

func (h *Handlers) Start(ctx context.Context, u *tele.User) Reply {
	h.register(ctx, u)
	first := u.FirstName
	if first == "" {
		first = DisplayName(u)
	}
	return Reply{
		Text:   fmt.Sprintf("👋 Добро пожаловать, %s! 🚀\nГотов проверить свои знания? Нажми 'Начать игру' или /help для списка команд!", first),
		Markup: mainMenu(),
	}
}

func (h *Handlers) Help() Reply {
	return markdown(helpText)
}

func (h *Handlers) RemoveKeyboard() Reply {
	return Reply{
		Text:   "Клавиатура команд удалена. Нажмите /start, чтобы вернуть её.",
		Markup: &tele.ReplyMarkup{RemoveKeyboard: true},
	}
}

func (h *Handlers) Quiz(ctx context.Context, u *tele.User) Reply {
	h.register(ctx, u)
	return Reply{Text: "🧐 Выбери режим викторины:", Markup: modeKeyboard()}
}

// Callback handles the mode and length buttons. The reply replaces the message with the buttons.
func (h *Handlers) Callback(ctx context.Context, u *tele.User, chatID int64, data string) Reply {
	cb, err := parseCallback(data)
	if err != nil {
		h.log.Warn("unknown callback", "data", data, "err", err)
		return plain("🤔 Неизвестная кнопка. Нажми /quiz ещё раз.")
	}
	if !cb.start {
		mode := modeGroup
		if cb.scope == domain.ScopePersonal {
			mode = modePersonal
		}
		return Reply{Text: "Отлично! Сколько вопросов ты хочешь решить?", Markup: lengthKeyboard(mode)}
	}

	_, err = h.game.Start(ctx, app.StartRequest{
		ParticipantID: u.ID,
		ChatID:        chatID,
		Scope:         cb.scope,
		Total:         cb.total,
	})
	if errors.Is(err, domain.ErrEmptySource) {
		return plain("⚠️ В базе данных нет вопросов. Попросите администратора их добавить.")
	}
	if err != nil {
		h.log.Error("start series", "user", u.ID, "chat", chatID, "err", err)
		return errorReply
	}
	length := "Безлимитная серия"
	if cb.total != domain.Unlimited {
		length = fmt.Sprintf("%d вопросов", cb.total)
	}
	return plain(fmt.Sprintf("✅ Отлично! Начинаем %s режим (%s)! Удачи!", modeTag(cb.scope), length))
}

// modeAccusative names the scope after "эту".
func modeAccusative(key domain.SessionKey) string {
	if key.Scope == domain.ScopePersonal {
		return "Личную"
	}
	return "Групповую"
}

// modePrepositional names the scope after "в этой".
func modePrepositional(key domain.SessionKey) string {
	if key.Scope == domain.ScopePersonal {
		return "Личной"
	}
	return "Групповой"
}

func (h *Handlers) Stop(ctx context.Context, u *tele.User, chatID int64) Reply {
	key, err := h.game.Stop(ctx, u.ID, chatID)
	switch {
	case err == nil:
		return Reply{}
	case errors.Is(err, domain.ErrNoActiveSession):
		return plain("Нет активной викторины для остановки в этом чате или для тебя лично.")
	case errors.Is(err, domain.ErrUnauthorized):
		return plain(fmt.Sprintf("🚫 Ты не можешь остановить эту %s викторину, так как её начал другой пользователь.", modeAccusative(key)))
	default:
		h.log.Error("stop series", "user", u.ID, "chat", chatID, "err", err)
		return errorReply
	}
}

func (h *Handlers) Skip(ctx context.Context, u *tele.User, chatID int64) Reply {
	key, err := h.game.Skip(ctx, u.ID, chatID)
	switch {
	case err == nil:
		return Reply{}
	case errors.Is(err, domain.ErrNoActiveSession):
		return plain("Сначала начни викторину с /quiz 🧩")
	case errors.Is(err, domain.ErrUnauthorized):
		return plain(fmt.Sprintf("🚫 Ты не можешь пропустить вопрос в этой %s викторине, так как её начал другой пользователь.", modePrepositional(key)))
	default:
		h.log.Error("skip question", "user", u.ID, "chat", chatID, "err", err)
		return errorReply
	}
}

func (h *Handlers) Hint(ctx context.Context, u *tele.User, chatID int64) Reply {
	_, err := h.game.Hint(ctx, u.ID, chatID)
	switch {
	case err == nil:
		return Reply{}
	case errors.Is(err, domain.ErrNoActiveSession):
		return plain("Сначала начни викторину с /quiz 🧩")
	case errors.Is(err, domain.ErrUnauthorized):
		return plain("🚫 Ты можешь использовать подсказку только в своей личной викторине.")
	case errors.Is(err, domain.ErrHintsExhausted):
		return plain("🚫 Ты уже использовал две подсказки на этот вопрос.")
	default:
		h.log.Error("hint", "user", u.ID, "chat", chatID, "err", err)
		return errorReply
	}
}

// Answer checks free text. Group chats stay quiet about stray messages.
func (h *Handlers) Answer(ctx context.Context, u *tele.User, chatID int64, private bool, text string) Reply {
	_, err := h.game.Answer(ctx, u.ID, chatID, text)
	switch {
	case err == nil, errors.Is(err, domain.ErrUnauthorized):
		return Reply{}
	case errors.Is(err, domain.ErrNoActiveSession):
		if private {
			return plain("Начни викторину с /quiz 🧩")
		}
		return Reply{}
	default:
		h.log.Error("answer", "user", u.ID, "chat", chatID, "err", err)
		return errorReply
	}
}

func (h *Handlers) Top(ctx context.Context) Reply {
	entries, err := h.catalog.Leaderboard(ctx, 5)
	if err != nil {
		h.log.Error("leaderboard", "err", err)
		return errorReply
	}
	return RenderLeaderboard(entries)
}

func (h *Handlers) SetName(ctx context.Context, u *tele.User, payload string) Reply {
	if strings.TrimSpace(payload) == "" {
		return markdown("Использование: /setname *Ваше новое имя*\n\nПример: `/setname Кот Учёный`")
	}
	name, err := h.catalog.RenamePlayer(ctx, u.ID, payload)
	if errors.Is(err, app.ErrInvalidName) {
		return plain("🚫 Имя должно быть от 2 до 30 символов.")
	}
	if err != nil {
		h.log.Error("rename player", "user", u.ID, "err", err)
		return errorReply
	}
	return markdown(fmt.Sprintf("✅ Твое имя на лидерборде успешно обновлено на: *%s*", escapeMarkdown(name)))
}

func (h *Handlers) isAdmin(u *tele.User) bool {
	return h.adminID != 0 && u.ID == h.adminID
}

var adminOnly = plain("🚫 Только администратор может использовать эту команду.")

func (h *Handlers) AddQuestion(ctx context.Context, u *tele.User, payload string) Reply {
	if !h.isAdmin(u) {
		return adminOnly
	}
	if strings.TrimSpace(payload) == "" {
		return plain("Использование: /add Вопрос?;Ответ")
	}
	text, answer, err := app.ParseQuestionLine(payload)
	if err != nil {
		return plain("Ошибка! Формат: /add Вопрос?;Ответ")
	}
	q, err := h.catalog.AddQuestion(ctx, text, answer)
	if err != nil {
		h.log.Error("add question", "err", err)
		return plain("❌ Ошибка БД: не удалось добавить вопрос.")
	}
	return markdown(fmt.Sprintf("💾 Вопрос успешно добавлен в базу данных (ID %d):\n\n*Вопрос*: %s\n*Ответ*: %s",
		q.ID, escapeMarkdown(q.Text), escapeMarkdown(q.Answer)))
}

func (h *Handlers) DeleteQuestion(ctx context.Context, u *tele.User, payload string) Reply {
	if !h.isAdmin(u) {
		return adminOnly
	}
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || id <= 0 {
		return plain("Использование: /delete ID_вопроса")
	}
	err = h.catalog.DeleteQuestion(ctx, id)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		return plain(fmt.Sprintf("⚠️ Вопроса с ID %d нет в базе.", id))
	}
	if err != nil {
		h.log.Error("delete question", "id", id, "err", err)
		return errorReply
	}
	return plain(fmt.Sprintf("🗑 Вопрос с ID %d удалён из базы.", id))
}

func (h *Handlers) ShowAll(ctx context.Context, u *tele.User) Reply {
	if !h.isAdmin(u) {
		return adminOnly
	}
	questions, err := h.catalog.ListQuestions(ctx)
	if err != nil {
		h.log.Error("list questions", "err", err)
		return errorReply
	}
	return RenderQuestionList(questions)
}
