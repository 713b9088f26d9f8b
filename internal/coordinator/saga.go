package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
)

const tracerName = "github.com/jcmexdev/quitq-checkout/internal/coordinator"

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	// Target is the state the saga reaches once Execute succeeds.
	Target() State
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// StepError is returned by Start when a step fails. Compensation holds the
// errors of compensating actions that did not go through; it is nil when
// the rollback was clean.
type StepError struct {
	Step         string
	Target       State
	Err          error
	Compensation error
}

func (e *StepError) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("step %s failed: %v (compensation failed: %v)", e.Step, e.Err, e.Compensation)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	if e.Compensation != nil {
		return []error{e.Err, e.Compensation}
	}
	return []error{e.Err}
}

// Orchestrator manages the execution of a collection of Steps.
type Orchestrator struct {
	sagaID              string
	steps               []Step
	log                 sagalog.Writer // nil-safe: nothing is persisted if nil
	payload             string
	orderRef            func() string
	compensationTimeout time.Duration
	state               State
}

type Option func(*Orchestrator)

// WithPayload stores the request that started the saga on the STARTED row.
func WithPayload(payload string) Option {
	return func(o *Orchestrator) { o.payload = payload }
}

// WithOrderRef lets log entries carry the order id once a step created it.
func WithOrderRef(ref func() string) Option {
	return func(o *Orchestrator) { o.orderRef = ref }
}

func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.compensationTimeout = d }
}

func NewOrchestrator(sagaID string, steps []Step, log sagalog.Writer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sagaID:              sagaID,
		steps:               steps,
		log:                 log,
		compensationTimeout: 10 * time.Second,
		state:               StatePricing,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the last state reached.
func (o *Orchestrator) State() State {
	return o.state
}

// Start runs the saga steps sequentially.
// If a step fails, or ctx is done before the next step starts, every
// previously successful step is compensated in reverse order.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var successfulSteps []Step
	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, step, successfulSteps, fmt.Errorf("interrupted before %s: %w", step.Name(), err))
		}

		slog.InfoContext(ctx, "executing step", "saga_id", o.sagaID, "step", step.Name())
		if err := o.execute(ctx, step); err != nil {
			return o.abort(ctx, step, successfulSteps, err)
		}

		// Track successful step for potential compensation (LIFO)
		successfulSteps = append(successfulSteps, step)
		o.state = step.Target()
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	slog.InfoContext(ctx, "saga completed successfully", "saga_id", o.sagaID, "state", o.state)
	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, step.Name())
	defer span.End()
	span.SetAttributes(attribute.String("saga.id", o.sagaID))

	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, failed Step, done []Step, cause error) error {
	slog.WarnContext(ctx, "step failed, starting rollback",
		"saga_id", o.sagaID,
		"step", failed.Name(),
		"error", cause,
	)
	o.record(ctx, sagalog.StatusCompensating, failed.Name(), "", []string{fmt.Sprintf("step %s failed: %v", failed.Name(), cause)})

	compErr := o.rollback(ctx, done)
	o.state = StateAborted

	errs := []string{fmt.Sprintf("step %s failed: %v", failed.Name(), cause)}
	if compErr != nil {
		errs = append(errs, compErr.Error())
	}
	o.record(ctx, sagalog.StatusFailed, failed.Name(), "", errs)

	return &StepError{
		Step:         failed.Name(),
		Target:       failed.Target(),
		Err:          cause,
		Compensation: compErr,
	}
}

// rollback runs on a context detached from the caller: a cancelled request
// must still clean up what it created.
func (o *Orchestrator) rollback(ctx context.Context, steps []Step) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.compensationTimeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate step, manual intervention required",
				"saga_id", o.sagaID,
				"order_id", o.orderID(),
				"step", step.Name(),
				"error", err,
			)
			o.record(ctx, sagalog.StatusCompensationFailed, step.Name(), "",
				[]string{fmt.Sprintf("compensation of %s failed: %v", step.Name(), err)})
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) orderID() string {
	if o.orderRef == nil {
		return ""
	}
	return o.orderRef()
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.log == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, o.orderID(), status, step, o.state.String(), errs)
	entry.Payload = payload
	if err := o.log.Save(context.WithoutCancel(ctx), entry); err != nil {
		slog.ErrorContext(ctx, "failed to persist saga log", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
