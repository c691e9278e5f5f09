// events.go — SSE endpoint событий сессии пользователя.
// Первым отправляется INITIAL_SESSION, далее SIGNED_IN, SIGNED_OUT и
// TOKEN_REFRESHED этого пользователя. Подписка снимается при отключении клиента.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/pocketshare/internal/service"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
)

// defaultKeepalive — интервал keepalive, если он не задан.
const defaultKeepalive = 15 * time.Second

// EventsHandler — обработчик SSE-потока событий сессии.
type EventsHandler struct {
	watcher   *service.AuthWatcher
	keepalive time.Duration
	logger    *slog.Logger
}

// NewEventsHandler создаёт обработчик. keepalive — интервал комментариев,
// удерживающих соединение через прокси (PS_SSE_KEEPALIVE).
func NewEventsHandler(watcher *service.AuthWatcher, keepalive time.Duration, logger *slog.Logger) *EventsHandler {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &EventsHandler{
		watcher:   watcher,
		keepalive: keepalive,
		logger:    logger.With(slog.String("component", "ui.events")),
	}
}

// HandleAuthEvents обрабатывает GET /events/auth.
// Формат: event: <тип>\ndata: {json}\n\n.
func (h *EventsHandler) HandleAuthEvents(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Подписка до отправки начального события, чтобы не потерять события между ними
	sub := h.watcher.Subscribe(session.UserID)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	h.logger.Debug("SSE клиент подключён",
		slog.String("user_id", session.UserID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if !h.send(w, rc, service.SessionEvent{
		Event:     service.EventInitialSession,
		UserID:    session.UserID,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAtTime(),
	}) {
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён", slog.String("user_id", session.UserID))
			return
		case ev, ok := <-sub.C:
			if !ok {
				// Рассыльщик закрыт (остановка сервера)
				return
			}
			if !h.send(w, rc, ev) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// send пишет событие в поток. false — соединение оборвано.
func (h *EventsHandler) send(w http.ResponseWriter, rc *http.ResponseController, ev service.SessionEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data); err != nil {
		return false
	}
	return rc.Flush() == nil
}
