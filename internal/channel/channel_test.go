package channel

import "testing"

func TestBuffered_TrySend(t *testing.T) {
	c := NewBuffered[int](2)
	if !c.TrySend(1) || !c.TrySend(2) {
		t.Fatal("expected sends to fit the buffer")
	}
	if c.TrySend(3) {
		t.Error("expected TrySend to fail on a full buffer")
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}
	if got := <-c.Receive(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	c.Close()
	if got, ok := <-c.Receive(); !ok || got != 2 {
		t.Errorf("expected buffered 2 after close, got %d %v", got, ok)
	}
}

func TestBuffered_OfferEvictsOldest(t *testing.T) {
	c := NewBuffered[string](2)
	if !c.Offer("a") || !c.Offer("b") {
		t.Fatal("expected offers to fit the buffer")
	}
	if c.Offer("c") {
		t.Error("expected Offer to report an eviction")
	}

	var got []string
	for c.Len() > 0 {
		got = append(got, <-c.Receive())
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("expected [b c], got %v", got)
	}
}

func TestUnbuffered_TrySendWithoutReader(t *testing.T) {
	c := NewUnbuffered[string]()
	if c.TrySend("x") {
		t.Error("expected TrySend to fail with no reader")
	}
	if c.Offer("x") {
		t.Error("expected Offer to drop with no reader")
	}
	if c.Len() != 0 {
		t.Errorf("expected len 0, got %d", c.Len())
	}

	done := make(chan string)
	go func() { done <- <-c.Receive() }()
	c.Send("y")
	if got := <-done; got != "y" {
		t.Errorf("expected y, got %q", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := NewBuffered[int](1)
	c.Close()
	c.Close()
	if _, ok := <-c.Receive(); ok {
		t.Error("expected closed channel")
	}
}

func TestNew_SatisfiesChannel(t *testing.T) {
	var c Channel[int] = New[int](1)
	defer c.Close()
	if !c.TrySend(7) {
		t.Fatal("expected a fresh channel to accept a value")
	}
}
