package mainloop

import (
	"errors"
	"testing"
	"time"
)

func TestLoop_PostAndCall(t *testing.T) {
	l := New(4)
	go l.Run()
	defer l.Stop()

	var ran bool
	l.Post(func() { ran = true })
	// Give the loop goroutine a chance to drain; Call below proves ordering
	// since it blocks until its own closure executes.
	if err := l.Call(func() error { return nil }); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !ran {
		t.Error("expected the posted closure to have run")
	}
}

func TestLoop_CallPropagatesError(t *testing.T) {
	l := New(1)
	go l.Run()
	defer l.Stop()

	sentinel := errors.New("boom")
	err := l.Call(func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	l := New(1)
	go l.Run()
	l.Stop()
	l.Stop()
	time.Sleep(time.Millisecond)
}
