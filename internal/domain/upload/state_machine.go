// Пакет upload — конечный автомат сессии resumable-загрузки одного файла.
//
// Жизненный цикл:
//   - created → uploading → completed
//   - uploading → paused → uploading — ожидание повтора после временной ошибки
//   - created, uploading, paused → failed
//
// completed и failed — конечные состояния.
// Потокобезопасен через sync.RWMutex.
package upload

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние сессии загрузки.
type State string

const (
	// StateCreated — сессия создана или найдена для продолжения
	StateCreated State = "created"
	// StateUploading — идёт передача чанков
	StateUploading State = "uploading"
	// StatePaused — передача прервана, ожидается повтор
	StatePaused State = "paused"
	// StateCompleted — все байты приняты backend
	StateCompleted State = "completed"
	// StateFailed — загрузка завершилась ошибкой
	StateFailed State = "failed"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Offset    int64     `json:"offset"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMachine — конечный автомат сессии загрузки.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateCreated:   {StateUploading: true, StateFailed: true},
	StateUploading: {StatePaused: true, StateCompleted: true, StateFailed: true},
	StatePaused:    {StateUploading: true, StateFailed: true},
	StateCompleted: {},
	StateFailed:    {},
}

// NewStateMachine создаёт автомат в состоянии created.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateCreated,
		history: make([]TransitionRecord, 0, 4),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// IsTerminal сообщает, достигнуто ли конечное состояние.
func (sm *StateMachine) IsTerminal() bool {
	s := sm.Current()
	return s == StateCompleted || s == StateFailed
}

// TransitionTo выполняет переход, фиксируя смещение и причину.
func (sm *StateMachine) TransitionTo(target State, offset int64, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	transitions, ok := validTransitions[sm.current]
	if !ok || !transitions[target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Offset:    offset,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
