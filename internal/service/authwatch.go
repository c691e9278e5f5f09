package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики событий сессии.
var (
	authEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_auth_events_total",
		Help: "Общее количество опубликованных событий сессии (по типу).",
	}, []string{"event"})

	authEventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_auth_events_dropped_total",
		Help: "Количество событий, не доставленных медленным подписчикам.",
	})

	authSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ps_auth_subscribers",
		Help: "Количество активных подписок на события сессии.",
	})
)

// AuthEvent — тип события сессии.
type AuthEvent string

// События сессии.
const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// subscriptionBuffer — ёмкость канала подписки.
const subscriptionBuffer = 8

// SessionEvent — событие сессии пользователя.
type SessionEvent struct {
	Event     AuthEvent `json:"event"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Subscription — подписка на события сессии одного пользователя.
type Subscription struct {
	C <-chan SessionEvent

	ch     chan SessionEvent
	userID string
	w      *AuthWatcher
	once   sync.Once
}

// Unsubscribe отменяет подписку и закрывает канал. Повторный вызов — no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.w.remove(s)
	})
}

// AuthWatcher — рассылка событий сессии подписчикам.
// Публикация не блокируется: если буфер подписчика полон, событие
// для него отбрасывается.
type AuthWatcher struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	logger *slog.Logger
}

// NewAuthWatcher создаёт рассыльщик событий.
func NewAuthWatcher(logger *slog.Logger) *AuthWatcher {
	return &AuthWatcher{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.With(slog.String("component", "auth_watcher")),
	}
}

// Subscribe подписывает на события пользователя userID.
// После Close возвращает подписку с закрытым каналом.
func (w *AuthWatcher) Subscribe(userID string) *Subscription {
	ch := make(chan SessionEvent, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, userID: userID, w: w}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	if w.subs[userID] == nil {
		w.subs[userID] = make(map[*Subscription]struct{})
	}
	w.subs[userID][sub] = struct{}{}
	authSubscribers.Inc()
	return sub
}

// Publish рассылает событие подписчикам пользователя ev.UserID.
func (w *AuthWatcher) Publish(ev SessionEvent) {
	authEventsTotal.WithLabelValues(string(ev.Event)).Inc()

	w.mu.RLock()
	defer w.mu.RUnlock()

	for sub := range w.subs[ev.UserID] {
		select {
		case sub.ch <- ev:
		default:
			authEventsDroppedTotal.Inc()
			w.logger.Warn("Подписчик не успевает принимать события",
				slog.String("user_id", ev.UserID),
				slog.String("event", string(ev.Event)),
			)
		}
	}
}

// remove удаляет подписку и закрывает её канал.
func (w *AuthWatcher) remove(sub *Subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()

	set, ok := w.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(w.subs, sub.userID)
	}
	close(sub.ch)
	authSubscribers.Dec()
}

// Close закрывает все подписки.
func (w *AuthWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for _, set := range w.subs {
		for sub := range set {
			close(sub.ch)
			authSubscribers.Dec()
		}
	}
	clear(w.subs)
}
