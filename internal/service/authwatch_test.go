package service

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("канал подписки закрыт")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("событие не получено")
	}
	return SessionEvent{}
}

func TestAuthWatcher_PublishToUser(t *testing.T) {
	w := NewAuthWatcher(testLogger())
	defer w.Close()

	alice := w.Subscribe("alice")
	bob := w.Subscribe("bob")
	defer alice.Unsubscribe()
	defer bob.Unsubscribe()

	w.Publish(SessionEvent{Event: EventTokenRefreshed, UserID: "alice"})

	if ev := receive(t, alice); ev.Event != EventTokenRefreshed {
		t.Errorf("событие = %s", ev.Event)
	}
	select {
	case ev := <-bob.C:
		t.Errorf("bob получил чужое событие %+v", ev)
	default:
	}
}

func TestAuthWatcher_UnsubscribeIdempotent(t *testing.T) {
	w := NewAuthWatcher(testLogger())
	sub := w.Subscribe("alice")

	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.C; ok {
		t.Error("после Unsubscribe канал должен быть закрыт")
	}

	// Публикация без подписчиков не должна паниковать.
	w.Publish(SessionEvent{Event: EventSignedOut, UserID: "alice"})

	w.Close()
	w.Close()
	sub.Unsubscribe()
}

func TestAuthWatcher_SlowSubscriberDoesNotBlock(t *testing.T) {
	w := NewAuthWatcher(testLogger())
	defer w.Close()

	sub := w.Subscribe("alice")
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for range subscriptionBuffer * 3 {
			w.Publish(SessionEvent{Event: EventTokenRefreshed, UserID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish заблокирован медленным подписчиком")
	}
	if len(sub.C) != subscriptionBuffer {
		t.Errorf("в буфере %d событий, ожидается %d", len(sub.C), subscriptionBuffer)
	}
}

func TestAuthWatcher_CloseClosesSubscriptions(t *testing.T) {
	w := NewAuthWatcher(testLogger())
	sub := w.Subscribe("alice")

	w.Close()
	if _, ok := <-sub.C; ok {
		t.Error("после Close канал должен быть закрыт")
	}

	late := w.Subscribe("alice")
	if _, ok := <-late.C; ok {
		t.Error("подписка после Close должна быть закрыта")
	}
	late.Unsubscribe()
}
