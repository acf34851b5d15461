package review

import "context"

// Decision values match the wire protocol and must not be renumbered.
type Decision int

const (
	DecisionRelease Decision = 1
	DecisionFlag    Decision = 2
)

func (d Decision) String() string {
	switch d {
	case DecisionRelease:
		return "release"
	case DecisionFlag:
		return "flag"
	default:
		return "unknown"
	}
}

// Phase is the coordinator's position in the fetch→review→submit cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseReviewing
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseReviewing:
		return "reviewing"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Item is one shipment image awaiting a release/flag decision. Items are
// never mutated after creation; a new fetch supersedes the previous item.
type Item struct {
	ID            string
	CorrelationID string
	Image         string
	Metadata      map[string]string
	TotalPending  int
}

// Valid reports whether the item can be reviewed. An item without an
// identifier cannot be submitted, and one without an image payload gives
// the operator nothing to judge; both are treated as "no item".
func (it *Item) Valid() bool {
	return it != nil && it.ID != "" && it.Image != ""
}

// Stats are today's decision counters. The server echoes authoritative
// totals after every successful submission; the client never decrements.
type Stats struct {
	Released int
	Flagged  int
}

// ItemSource serves the next unreviewed item. A (nil, nil) return is the
// normal "queue drained" outcome, not an error.
type ItemSource interface {
	FetchNext(ctx context.Context) (*Item, error)
}

// DecisionSubmitter records a decision for an item and returns the
// server-confirmed daily counters.
type DecisionSubmitter interface {
	Submit(ctx context.Context, itemID string, d Decision, correlationID string) (Stats, error)
}

// Snapshot is a read-only copy of session state for the presentation
// layer. CountdownRemaining is meaningful only in PhaseReviewing.
type Snapshot struct {
	Phase              Phase
	Item               *Item
	CountdownRemaining int
	Stats              Stats
	ConnStatus         string
	LastError          string
}
