package requests

import "testing"

func TestParseState(t *testing.T) {
	cases := []struct {
		in   string
		want State
		ok   bool
	}{
		{"PENDING", StatePending, true},
		{"approved", StateApproved, true},
		{"  Delivered  ", StateDelivered, true},
		{"closed", StateClosed, true},
		{"SHIPPED", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseState(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("ParseState(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StatePending, StateApproved},
		{StatePending, StateRejected},
		{StatePending, StateDelivered}, // 承認込み配付
		{StateApproved, StatePrepared},
		{StateApproved, StateDelivered},
		{StateApproved, StateRejected},
		{StatePrepared, StateDelivered},
		{StatePrepared, StateClosed},
		{StateDelivered, StateClosed},
	}
	for _, c := range allowed {
		if !c.from.CanTransitionTo(c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to State }{
		{StatePending, StateClosed},
		{StatePending, StatePrepared},
		{StateApproved, StatePending},
		{StateDelivered, StateApproved},
		{StateRejected, StateApproved},
		{StateClosed, StateDelivered},
	}
	for _, c := range denied {
		if c.from.CanTransitionTo(c.to) {
			t.Errorf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []State{StateRejected, StateClosed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateApproved, StatePrepared, StateDelivered} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOutstanding(t *testing.T) {
	l := RequestLine{QuantityRequested: 10, QuantityDelivered: 4}
	if got := l.Outstanding(); got != 6 {
		t.Errorf("Outstanding() = %d, want 6", got)
	}
}
