package modmanager

import (
	"time"

	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/module"
)

// StartWatchdog begins polling every registered remote handle for its
// peer-reported state, reconciling local state on drift. It is a
// self-rearming single-shot timer, not a fixed-rate ticker: each round
// sleeps for interval only after the previous round's poll has fully
// completed, so a slow poll never overlaps the next one. interval <= 0
// uses DefaultWatchdogInterval.
func (m *Manager) StartWatchdog(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	m.mu.Lock()
	if m.watchdogStop != nil {
		m.mu.Unlock()
		return
	}
	m.watchdogInterval = interval
	m.watchdogStop = make(chan struct{})
	m.watchdogDone = make(chan struct{})
	stop := m.watchdogStop
	done := m.watchdogDone
	m.mu.Unlock()

	go m.watchdogLoop(stop, done)
}

func (m *Manager) watchdogLoop(stop, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(m.watchdogInterval)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			m.pollRemotes()
			timer.Reset(m.watchdogInterval)
		}
	}
}

func (m *Manager) pollRemotes() {
	m.mu.Lock()
	remotes := make([]*module.RemoteHandle, 0, len(m.remote))
	for _, rh := range m.remote {
		remotes = append(remotes, rh)
	}
	m.mu.Unlock()

	for _, rh := range remotes {
		if err := rh.PollState(); err != nil {
			logging.WithModule(rh.Name()).Warnf("watchdog poll failed: %v", err)
			continue
		}
		m.changes.Publish(Change{Kind: StateChanged, Name: rh.Name()})
	}
}

// StopWatchdog stops the watchdog goroutine, if running, and waits for it
// to exit.
func (m *Manager) StopWatchdog() {
	m.mu.Lock()
	stop := m.watchdogStop
	done := m.watchdogDone
	m.watchdogStop = nil
	m.watchdogDone = nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
