package api

import "fmt"

// ErrorKind classifies transport failures for the status line. The
// coordinator treats every kind the same way (soft failure), so the kind
// exists for logging and display only.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindDecode
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FetchError wraps a failed fetch-next-item call.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch next item (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmitError wraps a failed submit-decision call.
type SubmitError struct {
	Kind ErrorKind
	Err  error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit decision (%s): %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
