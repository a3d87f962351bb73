// Package mainloop implements main-thread redirection: any call that must
// run on the process's single main goroutine (GUI-adjacent module
// operations, anything the source system pins to its Qt main thread) is
// submitted as a closure and the caller blocks on a completion channel
// embedded in that closure's captured state, mirroring the source's
// call_slot_from_native_thread.
package mainloop

// Loop is a single-goroutine work queue. Exactly one goroutine should call
// Run; every other goroutine calls Post or Call to get work executed there.
type Loop struct {
	work chan func()
	quit chan struct{}
}

// New constructs a Loop with the given submission buffer depth.
func New(buffer int) *Loop {
	return &Loop{
		work: make(chan func(), buffer),
		quit: make(chan struct{}),
	}
}

// Run drains the work queue on the calling goroutine until Stop is called.
// This is meant to be called once, from the process's main goroutine.
func (l *Loop) Run() {
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.work:
			fn()
		}
	}
}

// Stop requests Run return once it next reaches the select. Idempotent.
func (l *Loop) Stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

// Post submits fn to run on the loop goroutine without waiting.
func (l *Loop) Post(fn func()) {
	l.work <- fn
}

// Call submits fn to run on the loop goroutine and blocks until it
// returns. If fn itself returns an error, Call propagates it to the
// caller.
func (l *Loop) Call(fn func() error) error {
	done := make(chan error, 1)
	l.work <- func() {
		done <- fn()
	}
	return <-done
}
