package fsm

import "testing"

type testState uint8

const (
	stateA testState = iota
	stateB
	stateC
)

func TestFirstGuardWins(t *testing.T) {
	evaluated := []int{}
	entered := 0
	m := New(stateA,
		State[testState]{
			ID: stateA,
			Transitions: []Transition[testState]{
				{Target: stateB, Guard: func() bool { evaluated = append(evaluated, 0); return true }},
				{Target: stateC, Guard: func() bool { evaluated = append(evaluated, 1); return true }},
			},
		},
		State[testState]{ID: stateB, Entry: func() { entered++ }},
		State[testState]{ID: stateC, Entry: func() { t.Error("lower-priority target entered") }},
	)
	m.Update()
	if m.Current() != stateB {
		t.Errorf("state = %d, want %d", m.Current(), stateB)
	}
	if len(evaluated) != 1 || evaluated[0] != 0 {
		t.Errorf("guards evaluated: %v, want just the first", evaluated)
	}
	if entered != 1 {
		t.Errorf("entry action ran %d times, want 1", entered)
	}
}

func TestNoGuardFires(t *testing.T) {
	entered := 0
	m := New(stateA,
		State[testState]{
			ID:    stateA,
			Entry: func() { entered++ },
			Transitions: []Transition[testState]{
				{Target: stateB, Guard: func() bool { return false }},
			},
		},
		State[testState]{ID: stateB},
	)
	m.Update()
	m.Update()
	if m.Current() != stateA {
		t.Errorf("state = %d, want %d", m.Current(), stateA)
	}
	if entered != 0 {
		t.Errorf("entry action re-invoked %d times while staying put", entered)
	}
}

func TestDeclaredOrderIsPriority(t *testing.T) {
	// B's transition back to A outranks the one to C when both fire.
	m := New(stateA,
		State[testState]{
			ID: stateA,
			Transitions: []Transition[testState]{
				{Target: stateB, Guard: func() bool { return true }},
			},
		},
		State[testState]{
			ID: stateB,
			Transitions: []Transition[testState]{
				{Target: stateA, Guard: func() bool { return true }},
				{Target: stateC, Guard: func() bool { return true }},
			},
		},
		State[testState]{ID: stateC},
	)
	m.Update()
	if m.Current() != stateB {
		t.Fatalf("state = %d, want %d", m.Current(), stateB)
	}
	m.Update()
	if m.Current() != stateA {
		t.Errorf("state = %d, want %d", m.Current(), stateA)
	}
}

func TestOneTransitionPerUpdate(t *testing.T) {
	m := New(stateA,
		State[testState]{
			ID: stateA,
			Transitions: []Transition[testState]{
				{Target: stateB, Guard: func() bool { return true }},
			},
		},
		State[testState]{
			ID: stateB,
			Transitions: []Transition[testState]{
				{Target: stateC, Guard: func() bool { return true }},
			},
		},
		State[testState]{ID: stateC},
	)
	m.Update()
	if m.Current() != stateB {
		t.Errorf("one update crossed more than one transition: %d", m.Current())
	}
}
