package tui

import "github.com/rsm23/netflix-home-auto-confirm/internal/watch"

// Async message types for Bubble Tea commands.

// CycleEventMsg carries a finished cycle from the scheduler goroutine.
type CycleEventMsg watch.Event

type actionResultMsg struct {
	action string // "start", "stop", "apply"
	err    error
}

type refreshMsg struct{}

// statusMsg clears the status line set under seq.
type statusMsg struct{ seq int }
