package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Game is the set of session commands a socket client can issue.
type Game interface {
	Start(ctx context.Context, req app.StartRequest) (app.SessionView, error)
	Answer(ctx context.Context, participantID, chatID int64, text string) (app.AnswerResult, error)
	Hint(ctx context.Context, participantID, chatID int64) (app.HintResult, error)
	Skip(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error)
	Stop(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error)
}

type WSHandler struct {
	game     Game
	feed     *Feed
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(game Game, feed *Feed, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		game: game,
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Scope domain.Scope `json:"scope"`
	Total int          `json:"total"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type subscribedPayload struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

type startedPayload struct {
	SessionID string `json:"sessionId"`
	Key       string `json:"key"`
	Total     int    `json:"total"`
}

type answerResult struct {
	Matched bool `json:"matched"`
	Points  int  `json:"points"`
}

type hintResult struct {
	Pattern   []string `json:"pattern"`
	HintsUsed int      `json:"hintsUsed"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets, streams the chat's notifications and
// forwards commands to the game.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID, errChat := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	userID, errUser := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if errChat != nil || errUser != nil {
		http.Error(w, "missing or invalid chatId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe(chatID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "notification", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{ChatID: chatID, UserID: userID}}

	ctx := r.Context()
	readCommands(conn, writerDone, func(inbound inboundMessage) outboundMessage[any] {
		return h.handle(ctx, userID, chatID, inbound)
	}, send)

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

type jsonReader interface {
	ReadJSON(v interface{}) error
}

// readCommands answers inbound messages until the connection fails or the writer stops.
func readCommands(conn jsonReader, writerDone <-chan struct{}, handle func(inboundMessage) outboundMessage[any], send chan<- outboundMessage[any]) {
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		select {
		case send <- handle(inbound):
		case <-writerDone:
			return
		}
	}
}

func (h *WSHandler) handle(ctx context.Context, userID, chatID int64, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "start":
		payload := startPayload{Scope: domain.ScopeShared, Total: domain.Unlimited}
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				return errorMessage("", "invalid start payload")
			}
		}
		view, err := h.game.Start(ctx, app.StartRequest{
			ParticipantID: userID,
			ChatID:        chatID,
			Scope:         payload.Scope,
			Total:         payload.Total,
		})
		if err != nil {
			return errorFrom(err)
		}
		return outboundMessage[any]{Type: "started", Payload: startedPayload{
			SessionID: view.ID,
			Key:       view.Key.String(),
			Total:     view.Total,
		}}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage("", "invalid answer payload")
		}
		res, err := h.game.Answer(ctx, userID, chatID, payload.Text)
		if err != nil {
			return errorFrom(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{Matched: res.Matched, Points: res.Points}}
	case "hint":
		res, err := h.game.Hint(ctx, userID, chatID)
		if err != nil {
			return errorFrom(err)
		}
		return outboundMessage[any]{Type: "hintResult", Payload: hintResult{Pattern: res.Pattern, HintsUsed: res.HintsUsed}}
	case "skip":
		key, err := h.game.Skip(ctx, userID, chatID)
		if err != nil {
			return errorFrom(err)
		}
		return outboundMessage[any]{Type: "skipped", Payload: keyPayload{Key: key.String()}}
	case "stop":
		key, err := h.game.Stop(ctx, userID, chatID)
		if err != nil {
			return errorFrom(err)
		}
		return outboundMessage[any]{Type: "stopped", Payload: keyPayload{Key: key.String()}}
	default:
		return errorMessage("", "unsupported message type")
	}
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func errorFrom(err error) outboundMessage[any] {
	return errorMessage(ErrorCode(err), err.Error())
}

// ErrorCode maps engine errors to stable client codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptySource):
		return "empty_source"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrHintsExhausted):
		return "hints_exhausted"
	case errors.Is(err, domain.ErrNoActiveSession):
		return "no_active_session"
	default:
		return "internal"
	}
}
