package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tether/cmd/internal/requestctx"
)

// Event names emitted by the Manager.
const (
	EventRegistered      = "account.registered"
	EventLoggedIn        = "account.logged_in"
	EventLoggedOut       = "account.logged_out"
	EventPasswordChanged = "account.password_changed"
	EventDeleted         = "account.deleted"
)

// Event is a fire-and-forget domain notification.
type Event struct {
	Name      string
	AccountID string
	RequestID string
	ClientIP  string
	At        time.Time
	Attrs     map[string]any
}

// Notifier receives events. Notify must not block the caller and must not
// fail the operation that emitted the event.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NoopNotifier discards events.
type NoopNotifier struct{}

// Notify does nothing.
func (NoopNotifier) Notify(context.Context, Event) {}

// Sink is the delivery target behind an AsyncNotifier.
type Sink interface {
	Handle(ctx context.Context, e Event) error
}

// AsyncNotifier queues events on a bounded channel drained by one worker.
// A full queue drops the event with a warning.
type AsyncNotifier struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

var _ Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier starts the worker. Call Close to drain and stop it.
func NewAsyncNotifier(sink Sink, buffer int, log *slog.Logger) *AsyncNotifier {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	n := &AsyncNotifier{
		sink:    sink,
		log:     log,
		timeout: 5 * time.Second,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify enqueues e, stamping request metadata from ctx.
func (n *AsyncNotifier) Notify(ctx context.Context, e Event) {
	if e.RequestID == "" {
		e.RequestID = requestctx.RequestID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestctx.ClientIP(ctx)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.events <- e:
	default:
		n.log.Warn("notify.drop", "event", e.Name, "account_id", e.AccountID, "reason", "queue_full")
	}
}

// Close stops accepting events and waits for queued ones until ctx is done.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.events)
		n.mu.Unlock()
	})

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	for e := range n.events {
		n.deliver(e)
	}
}

func (n *AsyncNotifier) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("notify.panic", "event", e.Name, "err", fmt.Sprint(r))
		}
	}()

	// The emitting request may be gone; deliveries get their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := n.sink.Handle(ctx, e); err != nil {
		n.log.Warn("notify.fail", "event", e.Name, "account_id", e.AccountID, "err", err)
	}
}
