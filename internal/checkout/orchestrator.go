// Package checkout runs the two-phase reservation and payment flow: hold
// the seats, obtain a payment intent, confirm it with the card provider,
// then confirm it with the backend. Each flow is an Attempt with an
// explicit state machine; the Orchestrator creates them and keeps the live
// ones addressable by id.
package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/payment"
	"github.com/iliyamo/fleet-booking-client/internal/queue"
)

// Reservations is the part of the reservation repository checkout uses.
type Reservations interface {
	Create(ctx context.Context, req model.HoldRequest) (model.Reservation, error)
	Get(ctx context.Context, id uint64) (model.Reservation, error)
	Delete(ctx context.Context, id uint64) error
}

// Payments is the part of the payment repository checkout uses.
type Payments interface {
	Create(ctx context.Context, req model.PaymentRequest) (model.PaymentResponse, error)
	Confirm(ctx context.Context, paymentID uint64, intentID string) (model.PaymentRecord, error)
}

// Refresher rescans pending reservations after a checkout completes.
type Refresher interface {
	RefreshPending(ctx context.Context)
}

// Options wires an Orchestrator. Publisher and Refresher are optional.
type Options struct {
	Reservations Reservations
	Payments     Payments
	Provider     payment.Provider
	Publisher    queue.Publisher
	Refresher    Refresher
	Logger       *slog.Logger
	Now          func() time.Time
	// Retention bounds how long an idle attempt stays addressable.
	// Attempts holding a captured but unconfirmed payment are kept until
	// Reset.
	Retention time.Duration
	// UserID, when set, is stamped on published events.
	UserID func() uint64
}

const defaultRetention = 15 * time.Minute

// Orchestrator creates checkout attempts and tracks the live ones.
type Orchestrator struct {
	reservations Reservations
	payments     Payments
	provider     payment.Provider
	publisher    queue.Publisher
	refresher    Refresher
	log          *slog.Logger
	now          func() time.Time
	userID       func() uint64
	retention    time.Duration

	mu       sync.Mutex
	attempts map[string]*Attempt
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		reservations: opts.Reservations,
		payments:     opts.Payments,
		provider:     opts.Provider,
		publisher:    opts.Publisher,
		refresher:    opts.Refresher,
		log:          opts.Logger,
		now:          opts.Now,
		userID:       opts.UserID,
		retention:    opts.Retention,
		attempts:     make(map[string]*Attempt),
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "checkout")
	if o.provider == nil {
		o.provider = payment.Disabled{}
	}
	if o.publisher == nil {
		o.publisher = queue.LogPublisher{Log: o.log}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.retention <= 0 {
		o.retention = defaultRetention
	}
	return o
}

// Begin starts a new attempt for seats of trip, paid with method.
func (o *Orchestrator) Begin(trip uint64, seats []model.SeatSelection, method string) *Attempt {
	if method == "" {
		method = model.MetodoTarjeta
	}
	a := &Attempt{
		id:     uuid.NewString(),
		o:      o,
		status: CollectingAmount,
		trip:   trip,
		seats:  append([]model.SeatSelection(nil), seats...),
		method: method,
	}
	o.register(a)
	return a
}

// Resume re-enters the flow for an existing hold: it skips the hold step
// and requests a new payment intent for res. An expired hold yields
// apperror.ErrHoldExpired. When the payment request itself fails the
// attempt is still returned, in the failed state and retryable.
func (o *Orchestrator) Resume(ctx context.Context, res model.Reservation, method string) (*Attempt, error) {
	if res.Expired(o.now()) {
		return nil, apperror.ErrHoldExpired
	}
	if res.Estado != model.EstadoPendientePago {
		return nil, apperror.Validation("reservation %d is %s, not awaiting payment", res.ID, res.Estado)
	}
	if method == "" {
		method = model.MetodoTarjeta
	}
	amount := res.Total
	if amount == 0 {
		amount = model.SumPrices(res.Asientos)
	}
	held := res
	a := &Attempt{
		id:          uuid.NewString(),
		o:           o,
		status:      HoldRequested,
		trip:        uint64(res.Viaje),
		seats:       append([]model.SeatSelection(nil), res.Asientos...),
		method:      method,
		amount:      amount,
		reservation: &held,
		resumed:     true,
		busy:        true,
	}
	o.register(a)
	o.log.Info("resuming pending reservation", "attempt", a.id, "reservation_id", res.ID)

	defer a.done()
	if err := a.requestPayment(ctx); err != nil {
		return a, err
	}
	return a, nil
}

// Attempt returns a live attempt by id.
func (o *Orchestrator) Attempt(id string) (*Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.attempts[id]
	return a, ok
}

// Forget drops an attempt from the registry. Its server-side hold, if any,
// is left to expire.
func (o *Orchestrator) Forget(id string) {
	o.mu.Lock()
	delete(o.attempts, id)
	o.mu.Unlock()
}

// Len returns the number of tracked attempts.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.attempts)
}

// Reset drops every attempt, e.g. when the user logs out. Captured but
// unconfirmed payments are logged so they can be reconciled by hand.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	attempts := o.attempts
	o.attempts = make(map[string]*Attempt)
	o.mu.Unlock()
	for _, a := range attempts {
		a.mu.Lock()
		status, intentID, res := a.status, a.intentID, a.reservation
		a.mu.Unlock()
		if status != CapturedUnconfirmed {
			continue
		}
		var resID uint64
		if res != nil {
			resID = res.ID
		}
		o.log.Error("dropping attempt with captured unconfirmed payment", "attempt", a.id,
			"reservation_id", resID, "intent", intentID)
	}
	if len(attempts) > 0 {
		o.log.Info("checkout attempts cleared", "count", len(attempts))
	}
}

// register adds a and drops attempts idle for longer than the retention.
func (o *Orchestrator) register(a *Attempt) {
	now := o.now()
	a.touched = now
	o.mu.Lock()
	var stale []string
	for id, old := range o.attempts {
		if old.expired(now, o.retention) {
			delete(o.attempts, id)
			stale = append(stale, id)
		}
	}
	o.attempts[a.id] = a
	o.mu.Unlock()
	for _, id := range stale {
		o.log.Debug("forgetting idle attempt", "attempt", id)
	}
}
