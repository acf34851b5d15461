package tui

import "github.com/tutu529/qilin-check-bag/internal/review"

// SnapshotProvider hands the TUI read-only session state.
type SnapshotProvider interface {
	Snapshot() review.Snapshot
}

// Decider receives operator decisions from the keyboard.
type Decider interface {
	RequestDecision(review.Decision)
}
