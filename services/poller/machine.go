package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sankforever/gkcx/lib/scrapers/gkcf"
	"github.com/sankforever/gkcx/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var tracer = telemetry.Tracer("services/poller")

var meter = otel.Meter("services/poller")
var attemptCounter = newAttemptCounter()

func newAttemptCounter() metric.Int64Counter {
	counter, err := meter.Int64Counter(
		"gkcx.attempts",
		metric.WithDescription("captcha attempts by decision"),
	)
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return counter
}

// Session is one cookie-bearing conversation with the portal.
type Session interface {
	FetchCaptcha(ctx context.Context) ([]byte, error)
	SubmitLogin(ctx context.Context, fields gkcf.LoginFields) (string, error)
}

// SessionFactory opens a fresh Session, one is opened per attempt.
type SessionFactory func() (Session, error)

// Notifier is invoked once when a result is found.
type Notifier interface {
	Notify(ctx context.Context, document string) error
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	Policy     Policy
	Sessions   SessionFactory
	Recognizer Recognizer
	Fields     FieldEncoder
	Classifier Classifier
	Notifier   Notifier
	// Sleeper defaults to a context aware time.Sleep.
	Sleeper Sleeper
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes a finished run.
type Result struct {
	Final       State
	Attempts    int
	Submissions int
	StartedAt   time.Time
	FinishedAt  time.Time
	// Transitions lists every state the run went through, in order.
	Transitions []State
	// NotifyErr is set when the result was found but could not be delivered.
	NotifyErr error
}

// ErrExhausted is reported by Result.Err when every attempt was used up
// without the portal accepting a captcha.
var ErrExhausted = errors.New("attempts exhausted")

// Err is the error a caller should surface for this result, nil when the
// portal answered.
func (r Result) Err() error {
	switch r.Final.Kind {
	case StateExhausted:
		return fmt.Errorf("%w after %d attempts", ErrExhausted, r.Attempts)
	case StateAborted:
		return r.Final.Err
	}
	return nil
}

// Found reports whether the run ended with a result page.
func (r Result) Found() bool {
	return r.Final.Kind == StateDoneSuccess
}

// Machine drives the captcha retry loop, it is not safe for concurrent use.
type Machine struct {
	opts Options
}

func NewMachine(opts Options) (*Machine, error) {
	if opts.Sessions == nil || opts.Recognizer == nil || opts.Notifier == nil {
		return nil, fmt.Errorf("poller: sessions, recognizer and notifier are required")
	}
	if opts.Fields.static == nil || opts.Fields.dynamic == nil {
		return nil, fmt.Errorf("poller: field encoder is required")
	}
	if opts.Classifier == (Classifier{}) {
		opts.Classifier = NewClassifier(Markers{})
	}
	if opts.Sleeper == nil {
		opts.Sleeper = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{opts: opts}, nil
}

// Run polls until the portal yields a result, reports that nothing is
// published yet, or the attempts run out. The returned error is only set
// when the run was aborted (transport, codec or cancellation), in which case
// the result is still filled in.
func (m *Machine) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "poller:Run")
	defer span.End()

	policy := m.opts.Policy
	result := Result{StartedAt: m.opts.Now()}
	state := policy.Initial()
	result.Transitions = append(result.Transitions, state)

	for !state.Kind.Terminal() {
		var event Event
		switch state.Kind {
		case StateAttempting:
			result.Attempts++
			event = m.attempt(ctx, state.Attempt, &result)
			attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", event.Kind.String())))
		case StateRecovering:
			event = Event{Kind: EventContinue}
			if err := ctx.Err(); err != nil {
				event = Event{Kind: EventCanceled, Err: err}
			}
		case StateFailed:
			event = Event{Kind: EventBackoffElapsed}
			if err := m.opts.Sleeper(ctx, policy.Backoff); err != nil {
				event = Event{Kind: EventCanceled, Err: err}
			}
		}
		state = policy.Next(state, event)
		result.Transitions = append(result.Transitions, state)
	}
	result.Final = state

	switch state.Kind {
	case StateDoneSuccess:
		slog.InfoContext(ctx, "result found, sending notification", "attempt", state.Attempt)
		err := m.opts.Notifier.Notify(ctx, state.Body)
		if err != nil {
			result.NotifyErr = err
			span.RecordError(err)
			slog.ErrorContext(ctx, "failed to deliver notification", "err", err)
		} else {
			slog.InfoContext(ctx, "notification sent")
		}
	case StateDonePending:
		slog.InfoContext(ctx, "no result published yet", "attempt", state.Attempt)
	case StateExhausted:
		slog.WarnContext(ctx, "attempts exhausted without an accepted captcha", "attempts", result.Attempts)
	case StateAborted:
		span.RecordError(state.Err)
		span.SetStatus(codes.Error, "run aborted")
		slog.ErrorContext(ctx, "run aborted", "attempt", state.Attempt, "err", state.Err)
	}

	result.FinishedAt = m.opts.Now()
	span.SetAttributes(
		attribute.String("poller.final", state.Kind.String()),
		attribute.Int("poller.attempts", result.Attempts),
		attribute.Int("poller.submissions", result.Submissions),
	)

	if state.Kind == StateAborted {
		return result, state.Err
	}
	return result, nil
}

func (m *Machine) attempt(ctx context.Context, i int, result *Result) Event {
	ctx, span := tracer.Start(ctx, "poller:attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", i))

	event := m.runAttempt(ctx, i, result)
	span.SetAttributes(attribute.String("decision", event.Kind.String()))
	if event.Err != nil {
		span.RecordError(event.Err)
	}
	return event
}

func (m *Machine) runAttempt(ctx context.Context, i int, result *Result) Event {
	if err := ctx.Err(); err != nil {
		return Event{Kind: EventCanceled, Err: err}
	}

	session, err := m.opts.Sessions()
	if err != nil {
		slog.ErrorContext(ctx, "failed to open session", "attempt", i, "err", err)
		return Event{Kind: EventTransportFailed, Err: err}
	}

	image, err := session.FetchCaptcha(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch captcha", "attempt", i, "err", err)
		return m.transportEvent(ctx, err)
	}

	code, err := m.opts.Recognizer.Recognize(ctx, image)
	if err != nil {
		slog.WarnContext(ctx, "captcha recognition failed, retrying", "attempt", i, "decision", "recover", "err", err)
		return Event{Kind: EventRecognitionFailed, Err: err}
	}
	slog.DebugContext(ctx, "captcha recognized", "attempt", i, "code", code)

	fields, err := m.opts.Fields.Encode(code)
	if err != nil {
		return Event{Kind: EventCodecFailed, Err: err}
	}

	body, err := session.SubmitLogin(ctx, fields)
	if err != nil {
		slog.ErrorContext(ctx, "failed to submit login", "attempt", i, "err", err)
		return m.transportEvent(ctx, err)
	}
	result.Submissions++

	outcome := m.opts.Classifier.Classify(body)
	switch outcome.Kind {
	case OutcomeWrongCaptcha:
		slog.WarnContext(
			ctx, "captcha rejected, retrying after backoff",
			"attempt", i, "decision", "backoff", "code", code, "backoff", m.opts.Policy.Backoff,
		)
		return Event{Kind: EventWrongCaptcha}
	case OutcomePending:
		return Event{Kind: EventPending}
	default:
		return Event{Kind: EventSuccess, Body: outcome.Body}
	}
}

func (m *Machine) transportEvent(ctx context.Context, err error) Event {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return Event{Kind: EventCanceled, Err: ctxErr}
	}
	return Event{Kind: EventTransportFailed, Err: err}
}
