package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"trivia-service/internal/domain"
)

const (
	modePersonal = "personal"
	modeGroup    = "group"
)

func modeKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "👤 Личный режим (Твой прогресс)", Data: "mode_" + modePersonal}},
		{{Text: "👥 Групповой режим (Для этого чата)", Data: "mode_" + modeGroup}},
	}}
}

func lengthKeyboard(mode string) *tele.ReplyMarkup {
	button := func(text string, total int) []tele.InlineButton {
		return []tele.InlineButton{{Text: text, Data: fmt.Sprintf("start_%s_%d", mode, total)}}
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		button("10 Вопросов 📝", 10),
		button("20 Вопросов 📚", 20),
		button("50 Вопросов 🔥", 50),
		button("♾️ Безлимитно", domain.Unlimited),
	}}
}

func mainMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(menuQuizText)),
		menu.Row(menu.Text("/help"), menu.Text("/top")),
	)
	return menu
}

// callback is a parsed inline button press.
type callback struct {
	// start is false for the mode step and true once the length is chosen.
	start bool
	scope domain.Scope
	total int
}

func parseCallback(data string) (callback, error) {
	data = strings.TrimSpace(data)
	if mode, ok := strings.CutPrefix(data, "mode_"); ok {
		scope, err := domain.ParseScope(mode)
		if err != nil {
			return callback{}, err
		}
		return callback{scope: scope}, nil
	}
	rest, ok := strings.CutPrefix(data, "start_")
	if !ok {
		return callback{}, fmt.Errorf("unknown callback %q", data)
	}
	mode, rawTotal, ok := strings.Cut(rest, "_")
	if !ok {
		return callback{}, fmt.Errorf("malformed callback %q", data)
	}
	scope, err := domain.ParseScope(mode)
	if err != nil {
		return callback{}, err
	}
	total, err := strconv.Atoi(rawTotal)
	if err != nil || (total != domain.Unlimited && total < 1) {
		return callback{}, fmt.Errorf("malformed series length in %q", data)
	}
	return callback{start: true, scope: scope, total: total}, nil
}
