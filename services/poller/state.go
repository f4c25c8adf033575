package poller

import (
	"fmt"
	"time"
)

// StateKind names a state of the polling loop.
type StateKind int

const (
	// StateAttempting runs one fetch, solve, submit, classify cycle.
	StateAttempting StateKind = iota
	// StateRecovering follows a failed recognition, the next attempt starts
	// right away.
	StateRecovering
	// StateFailed follows a rejected captcha, the next attempt starts after
	// the backoff.
	StateFailed
	StateDonePending
	StateDoneSuccess
	StateExhausted
	StateAborted
)

func (k StateKind) String() string {
	switch k {
	case StateAttempting:
		return "attempting"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	case StateDonePending:
		return "done_pending"
	case StateDoneSuccess:
		return "done_success"
	case StateExhausted:
		return "exhausted"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

func (k StateKind) Terminal() bool {
	switch k {
	case StateDonePending, StateDoneSuccess, StateExhausted, StateAborted:
		return true
	}
	return false
}

// State is a StateKind at a given attempt index.
type State struct {
	Kind    StateKind
	Attempt int
	// Body is the result page, set in StateDoneSuccess.
	Body string
	// Err is the cause of StateAborted.
	Err error
}

func (s State) String() string {
	return fmt.Sprintf("%s(%d)", s.Kind, s.Attempt)
}

// EventKind names what happened while in a state.
type EventKind int

const (
	EventRecognitionFailed EventKind = iota
	EventTransportFailed
	EventCodecFailed
	EventCanceled
	EventWrongCaptcha
	EventPending
	EventSuccess
	// EventContinue leaves StateRecovering.
	EventContinue
	// EventBackoffElapsed leaves StateFailed.
	EventBackoffElapsed
)

func (k EventKind) String() string {
	switch k {
	case EventRecognitionFailed:
		return "recognition_failed"
	case EventTransportFailed:
		return "transport_failed"
	case EventCodecFailed:
		return "codec_failed"
	case EventCanceled:
		return "canceled"
	case EventWrongCaptcha:
		return "wrong_captcha"
	case EventPending:
		return "pending"
	case EventSuccess:
		return "success"
	case EventContinue:
		return "continue"
	case EventBackoffElapsed:
		return "backoff_elapsed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is the input to Policy.Next.
type Event struct {
	Kind EventKind
	Body string
	Err  error
}

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	// Backoff is slept after a rejected captcha.
	Backoff time.Duration
	// RetryTransport turns transport failures into ordinary failed attempts
	// instead of aborting the run.
	RetryTransport bool
}

const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 3 * time.Second
)

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Initial is the state a run starts in.
func (p Policy) Initial() State {
	if p.MaxAttempts <= 0 {
		return State{Kind: StateExhausted}
	}
	return State{Kind: StateAttempting}
}

func (p Policy) advance(attempt int) State {
	if attempt+1 >= p.MaxAttempts {
		return State{Kind: StateExhausted, Attempt: attempt}
	}
	return State{Kind: StateAttempting, Attempt: attempt + 1}
}

// Next is the transition function of the run. It has no side effects,
// terminal states and events that do not apply to a state leave it unchanged.
func (p Policy) Next(state State, event Event) State {
	i := state.Attempt

	switch state.Kind {
	case StateAttempting:
		switch event.Kind {
		case EventRecognitionFailed:
			return State{Kind: StateRecovering, Attempt: i}
		case EventTransportFailed:
			if p.RetryTransport {
				return State{Kind: StateRecovering, Attempt: i}
			}
			return State{Kind: StateAborted, Attempt: i, Err: event.Err}
		case EventCodecFailed, EventCanceled:
			return State{Kind: StateAborted, Attempt: i, Err: event.Err}
		case EventWrongCaptcha:
			return State{Kind: StateFailed, Attempt: i}
		case EventPending:
			return State{Kind: StateDonePending, Attempt: i}
		case EventSuccess:
			return State{Kind: StateDoneSuccess, Attempt: i, Body: event.Body}
		}
	case StateRecovering:
		switch event.Kind {
		case EventContinue:
			return p.advance(i)
		case EventCanceled:
			return State{Kind: StateAborted, Attempt: i, Err: event.Err}
		}
	case StateFailed:
		switch event.Kind {
		case EventBackoffElapsed:
			return p.advance(i)
		case EventCanceled:
			return State{Kind: StateAborted, Attempt: i, Err: event.Err}
		}
	}
	return state
}
