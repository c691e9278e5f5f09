package selection

import (
	"slices"
	"sync"
	"testing"
)

func TestToggle(t *testing.T) {
	s := New()

	if !s.Toggle("a") {
		t.Error("первый Toggle(a) должен выбрать a")
	}
	if !s.Has("a") {
		t.Error("a должен быть выбран")
	}
	if s.Toggle("a") {
		t.Error("второй Toggle(a) должен снять выбор")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, ожидается 0", s.Len())
	}
}

func TestToggleAll(t *testing.T) {
	all := []string{"a", "b", "c"}

	tests := []struct {
		name    string
		initial []string
		want    []string
	}{
		{name: "пустой → все", initial: nil, want: []string{"a", "b", "c"}},
		{name: "все → пусто", initial: []string{"a", "b", "c"}, want: []string{}},
		{name: "часть → все (замена, не инверсия)", initial: []string{"b"}, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, id := range tt.initial {
				s.Toggle(id)
			}
			s.ToggleAll(all)
			if got := s.IDs(); !slices.Equal(got, tt.want) {
				t.Errorf("IDs() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}

func TestToggleAll_Sequence(t *testing.T) {
	s := New()
	all := []string{"a", "b", "c"}

	s.ToggleAll(all)
	if s.Len() != 3 {
		t.Fatalf("после первого вызова Len() = %d, ожидается 3", s.Len())
	}
	s.ToggleAll(all)
	if s.Len() != 0 {
		t.Fatalf("после второго вызова Len() = %d, ожидается 0", s.Len())
	}
}

func TestToggleAll_ReplacesStaleIDs(t *testing.T) {
	s := New()
	s.Toggle("gone-1")
	s.Toggle("gone-2")

	// Размер совпадает с числом идентификаторов, поэтому набор очищается.
	s.ToggleAll([]string{"x", "y"})
	if s.Len() != 0 {
		t.Errorf("Len() = %d, ожидается 0", s.Len())
	}

	s.Toggle("gone-1")
	s.ToggleAll([]string{"x", "y"})
	if got := s.IDs(); !slices.Equal(got, []string{"x", "y"}) {
		t.Errorf("IDs() = %v, ожидается [x y]", got)
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Toggle("a")
	s.Toggle("b")
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d, ожидается 0", s.Len())
	}
}

func TestConcurrentToggle(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Toggle("a")
		}()
	}
	wg.Wait()
	// Чётное число переключений оставляет a невыбранным.
	if s.Has("a") {
		t.Error("после 100 переключений a не должен быть выбран")
	}
}
