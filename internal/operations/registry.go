// Package operations tracks long-running session work (document ingestion)
// and publishes its lifecycle as JSON events.
//
// Events are published to subjects:
//   - <prefix>.<session_id>.<operation_id>.started
//   - <prefix>.<session_id>.<operation_id>.progress
//   - <prefix>.<session_id>.<operation_id>.error
//   - <prefix>.<session_id>.<operation_id>.completed
package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/logging"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "operations"

// ErrNotFound is returned for an unknown operation id.
var ErrNotFound = errors.New("operation not found")

// Status is the lifecycle state of an operation.
type Status string

// Operation states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Operation is one tracked unit of work.
type Operation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Params    any       `json:"params,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher sends raw event payloads. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(string, []byte) error { return nil }

// Config configures a Registry.
type Config struct {
	Publisher Publisher
	// Prefix is the first subject token. Defaults to DefaultPrefix.
	Prefix string
	// Retention is how long finished operations stay queryable. Defaults to one hour.
	Retention time.Duration
	Logger    *logging.Logger
}

// Registry keeps operations in memory and publishes their events.
// Publish failures are logged and returned; the in-memory state still advances.
type Registry struct {
	pub       Publisher
	prefix    string
	retention time.Duration
	logger    *logging.Logger

	mu  sync.Mutex
	ops map[string]*Operation
}

// NewRegistry creates a Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Registry{
		pub:       cfg.Publisher,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
		logger:    cfg.Logger.Named("operations"),
		ops:       make(map[string]*Operation),
	}
}

// Create registers a pending operation and returns its id.
func (r *Registry) Create(ctx context.Context, sessionID, kind string, params any) string {
	now := time.Now()
	op := &Operation{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      kind,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		op.TraceID = sc.TraceID().String()
	}

	r.mu.Lock()
	r.ops[op.ID] = op
	r.mu.Unlock()
	return op.ID
}

// Started marks the operation running and publishes "started".
func (r *Registry) Started(ctx context.Context, opID string) error {
	op, err := r.update(opID, func(op *Operation) { op.Status = StatusRunning })
	if err != nil {
		return err
	}
	return r.publish(ctx, op, "started", op)
}

// Progress publishes a "progress" event.
func (r *Registry) Progress(ctx context.Context, opID string, percent int, message string) error {
	op, err := r.update(opID, func(*Operation) {})
	if err != nil {
		return err
	}
	return r.publish(ctx, op, "progress", map[string]any{
		"id":        opID,
		"percent":   percent,
		"message":   message,
		"timestamp": time.Now(),
	})
}

// Fail marks the operation failed and publishes "error".
func (r *Registry) Fail(ctx context.Context, opID string, cause error) error {
	op, err := r.update(opID, func(op *Operation) {
		op.Status = StatusFailed
		op.Error = cause.Error()
	})
	if err != nil {
		return err
	}
	r.expire(opID)
	return r.publish(ctx, op, "error", map[string]any{
		"id":        opID,
		"message":   cause.Error(),
		"trace_id":  op.TraceID,
		"timestamp": time.Now(),
	})
}

// Complete marks the operation completed and publishes "completed".
func (r *Registry) Complete(ctx context.Context, opID string, result any) error {
	op, err := r.update(opID, func(op *Operation) {
		op.Status = StatusCompleted
		op.Result = result
	})
	if err != nil {
		return err
	}
	r.expire(opID)
	return r.publish(ctx, op, "completed", map[string]any{
		"id":          opID,
		"result":      result,
		"duration_ms": op.UpdatedAt.Sub(op.CreatedAt).Milliseconds(),
		"timestamp":   op.UpdatedAt,
	})
}

// Get returns a snapshot of the operation.
func (r *Registry) Get(opID string) (Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[opID]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrNotFound, opID)
	}
	return *op, nil
}

// Subject returns the subject an event for op is published on.
func (r *Registry) Subject(sessionID, opID, event string) string {
	return fmt.Sprintf("%s.%s.%s.%s", r.prefix, sessionID, opID, event)
}

// update applies fn under the lock and returns a snapshot.
func (r *Registry) update(opID string, fn func(*Operation)) (Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[opID]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrNotFound, opID)
	}
	fn(op)
	op.UpdatedAt = time.Now()
	return *op, nil
}

func (r *Registry) expire(opID string) {
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.ops, opID)
		r.mu.Unlock()
	})
}

func (r *Registry) publish(ctx context.Context, op Operation, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	subject := r.Subject(op.SessionID, op.ID, event)
	if err := r.pub.Publish(subject, data); err != nil {
		r.logger.Warn(ctx, "failed to publish operation event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s event: %w", event, err)
	}
	return nil
}
