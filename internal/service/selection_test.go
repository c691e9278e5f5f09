package service

import (
	"testing"
	"time"
)

func TestSelectionService_PerSession(t *testing.T) {
	svc := NewSelectionService(time.Hour)

	a := svc.For("session-a")
	a.Toggle("1")
	a.Toggle("2")

	if got := svc.For("session-a").Len(); got != 2 {
		t.Errorf("Len() = %d, ожидается 2 (тот же набор)", got)
	}
	if got := svc.For("session-b").Len(); got != 0 {
		t.Errorf("набор другой сессии должен быть пуст, Len() = %d", got)
	}

	svc.Release("session-a")
	if got := svc.For("session-a").Len(); got != 0 {
		t.Errorf("после Drop набор пуст, Len() = %d", got)
	}
}

func TestSelectionService_Expiry(t *testing.T) {
	svc := NewSelectionService(30 * time.Millisecond)
	svc.For("s").Toggle("1")

	time.Sleep(100 * time.Millisecond)
	if got := svc.For("s").Len(); got != 0 {
		t.Errorf("истёкший набор должен быть заменён пустым, Len() = %d", got)
	}
}
