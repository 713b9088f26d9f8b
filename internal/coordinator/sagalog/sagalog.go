// Package sagalog records every state transition of a checkout saga in an
// append-only log. Rows are correlated with traces by trace and span id, and
// rows with StatusCompensationFailed mark checkouts that need manual cleanup.
package sagalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
)

var ErrNotFound = errors.New("saga not found")

type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
	// A compensating delete or restock did not go through.
	StatusCompensationFailed Status = "COMPENSATION_FAILED"
)

// Entry is one row of the log.
type Entry struct {
	SagaID  string
	OrderID string // empty until the order row exists
	Status  Status
	Step    string
	State   string
	// Payload is the checkout request; only the STARTED row carries it.
	Payload string
	// Errors is a JSON array of strings, "[]" when there are none.
	Errors    string
	TraceID   string
	SpanID    string
	UpdatedAt time.Time
}

type Writer interface {
	Save(ctx context.Context, entry *Entry) error
}

type Reader interface {
	GetLatest(ctx context.Context, sagaID string) (*Entry, error)
}

// NewEntry stamps an entry with the current time and the span found in ctx.
func NewEntry(ctx context.Context, sagaID, orderID string, status Status, step, state string, errs []string) *Entry {
	e := &Entry{
		SagaID:    sagaID,
		OrderID:   orderID,
		Status:    status,
		Step:      step,
		State:     state,
		Errors:    encodeErrors(errs),
		UpdatedAt: time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}

func encodeErrors(errs []string) string {
	if len(errs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
