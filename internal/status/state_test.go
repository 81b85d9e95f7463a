package status

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Idle, Closed},
		{Connecting, Joining},
		{Connecting, Unauthenticated},
		{Connecting, Reconnecting},
		{Joining, Ready},
		{Joining, Reconnecting},
		{Ready, Reconnecting},
		{Ready, Unauthenticated},
		{Reconnecting, Connecting},
		{Unauthenticated, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(IDLE -> READY) should fail")
	}
}

// TestReadyRequiresJoin verifies that a connected channel cannot become READY
// before its rooms were joined.
func TestReadyRequiresJoin(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connecting)

	if err := m.Transition(Ready); err == nil {
		t.Fatal("Transition(CONNECTING -> READY) should fail; must go through JOINING first")
	}
	if m.Current() != Connecting {
		t.Errorf("state = %s, want CONNECTING (should not have changed)", m.Current())
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Closed)
	for _, s := range []State{Idle, Connecting, Ready} {
		if err := m.Transition(s); err == nil {
			t.Errorf("Transition(CLOSED -> %s) should fail", s)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Idle || change.To != Connecting {
		t.Errorf("change = %v -> %v, want IDLE -> CONNECTING", change.From, change.To)
	}
}

// TestDisconnectReconnectCycle verifies the reconnect loop:
// READY → RECONNECTING → CONNECTING → JOINING → READY
func TestDisconnectReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)

	steps := []State{Reconnecting, Connecting, Joining, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:            {},
		Connecting:      {Connecting},
		Joining:         {Connecting, Joining},
		Ready:           {Connecting, Joining, Ready},
		Reconnecting:    {Connecting, Joining, Ready, Reconnecting},
		Unauthenticated: {Connecting, Unauthenticated},
		Closed:          {Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
