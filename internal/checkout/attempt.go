package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/payment"
	"github.com/iliyamo/fleet-booking-client/internal/queue"
)

// Status is the state of one checkout attempt.
//
//	collecting_amount → hold_requested → awaiting_card → intent_confirming
//	  → server_confirming → completed
//
// Any step can end in failed. awaiting_card can be canceled. A backend
// confirmation failure after the provider captured the payment lands in
// captured_unconfirmed, from which only the confirmation is retried.
type Status string

const (
	CollectingAmount    Status = "collecting_amount"
	HoldRequested       Status = "hold_requested"
	AwaitingCard        Status = "awaiting_card"
	IntentConfirming    Status = "intent_confirming"
	ServerConfirming    Status = "server_confirming"
	Completed           Status = "completed"
	Failed              Status = "failed"
	Canceled            Status = "canceled"
	CapturedUnconfirmed Status = "captured_unconfirmed"
)

// Result is reported when an attempt completes.
type Result struct {
	Reservation model.Reservation    `json:"reservation"`
	Total       model.Money          `json:"total"`
	Estado      string               `json:"estado"`
	Payment     *model.PaymentRecord `json:"payment,omitempty"`
}

// Attempt is one run of the checkout flow. Steps are serialized: calling a
// step while another is running, or from the wrong state, returns
// apperror.ErrInvalidState.
type Attempt struct {
	id      string
	o       *Orchestrator
	trip    uint64
	seats   []model.SeatSelection
	method  string
	resumed bool

	mu          sync.Mutex
	busy        bool
	status      Status
	amount      model.Money
	reservation *model.Reservation
	intent      *model.PaymentIntent
	intentID    string // captured by the provider, pending backend confirmation
	result      *Result
	err         error
	retryable   bool
	touched     time.Time
}

// Snapshot is a point-in-time copy of an attempt, shaped for JSON.
// ClientSecret is exposed only while the card widget needs it.
type Snapshot struct {
	ID            string                `json:"id"`
	Status        Status                `json:"status"`
	Trip          uint64                `json:"trip"`
	Seats         []model.SeatSelection `json:"seats"`
	Method        string                `json:"method"`
	Amount        model.Money           `json:"amount"`
	Resumed       bool                  `json:"resumed,omitempty"`
	ReservationID uint64                `json:"reservation_id,omitempty"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	ClientSecret  string                `json:"client_secret,omitempty"`
	PaymentID     uint64                `json:"payment_id,omitempty"`
	Retryable     bool                  `json:"retryable"`
	Error         string                `json:"error,omitempty"`
	ErrorKind     string                `json:"error_kind,omitempty"`
	Result        *Result               `json:"result,omitempty"`
}

func (a *Attempt) ID() string { return a.id }

func (a *Attempt) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Retryable reports whether a failed attempt still holds its seats and can
// request a new payment intent.
func (a *Attempt) Retryable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == Failed && a.retryable
}

// Err returns the error that moved the attempt to failed or
// captured_unconfirmed.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Attempt) Result() (Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return Result{}, false
	}
	return *a.result, true
}

// Intent returns the live payment intent, if any.
func (a *Attempt) Intent() (model.PaymentIntent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.intent == nil {
		return model.PaymentIntent{}, false
	}
	return *a.intent, true
}

func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		ID:        a.id,
		Status:    a.status,
		Trip:      a.trip,
		Seats:     a.seats,
		Method:    a.method,
		Amount:    a.amount,
		Resumed:   a.resumed,
		Retryable: a.status == Failed && a.retryable,
	}
	if a.reservation != nil {
		s.ReservationID = a.reservation.ID
		s.ExpiresAt = a.reservation.ExpiraEn
	}
	if a.intent != nil {
		s.PaymentID = a.intent.PaymentID
		if a.status == AwaitingCard {
			s.ClientSecret = a.intent.ClientSecret
		}
	}
	if a.err != nil {
		s.Error = a.err.Error()
		s.ErrorKind = apperror.Kind(a.err)
	}
	if a.result != nil {
		r := *a.result
		s.Result = &r
	}
	return s
}

// Hold places the seat hold and requests the payment. The amount sent is
// always the sum of the selected seats' prices. With no seats selected it
// returns apperror.ErrValidation without any request.
func (a *Attempt) Hold(ctx context.Context) error {
	if err := a.start("hold", CollectingAmount); err != nil {
		return err
	}
	defer a.done()

	if len(a.seats) == 0 {
		return apperror.Validation("select at least one seat")
	}
	if a.trip == 0 {
		return apperror.Validation("trip is required")
	}
	amount := model.SumPrices(a.seats)
	a.mu.Lock()
	a.amount = amount
	a.status = HoldRequested
	a.mu.Unlock()

	res, err := a.o.reservations.Create(ctx, model.HoldRequest{Viaje: a.trip, Asientos: a.seats, Total: amount})
	if err != nil {
		return a.fail(err, false)
	}
	if res.Total != 0 && res.Total != amount {
		a.release(ctx, res.ID)
		return a.fail(fmt.Errorf("%w: backend total %s, selected seats total %s",
			apperror.ErrAmountMismatch, res.Total, amount), false)
	}
	a.mu.Lock()
	a.reservation = &res
	a.mu.Unlock()
	a.o.log.Info("seats held", "attempt", a.id, "reservation_id", res.ID, "total", amount.String())

	return a.requestPayment(ctx)
}

// SubmitCard confirms the intent with the provider using tok and then
// confirms the payment with the backend. A provider decline fails the
// attempt but keeps the hold (see RetryPayment). A backend failure after
// the provider captured the payment returns *apperror.PartialConfirmationError.
func (a *Attempt) SubmitCard(ctx context.Context, tok payment.CardToken) error {
	if err := a.start("submit card", AwaitingCard); err != nil {
		return err
	}
	defer a.done()

	a.mu.Lock()
	intent := *a.intent
	a.status = IntentConfirming
	a.mu.Unlock()

	conf, err := a.o.provider.ConfirmCardPayment(ctx, intent.ClientSecret, tok)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			a.setStatus(AwaitingCard)
			return err
		}
		return a.fail(err, true)
	}
	intentID := conf.IntentID
	if intentID == "" {
		intentID, _ = payment.IntentIDFromSecret(intent.ClientSecret)
	}

	a.mu.Lock()
	a.intentID = intentID
	a.status = ServerConfirming
	a.mu.Unlock()
	return a.confirmServer(ctx)
}

// Pay collects a card through c and submits it. A collector error cancels
// the attempt.
func (a *Attempt) Pay(ctx context.Context, c payment.CardCollector) error {
	if st := a.Status(); st != AwaitingCard {
		return fmt.Errorf("%w: cannot pay from %s", apperror.ErrInvalidState, st)
	}
	tok, err := c.CollectCard(ctx)
	if err != nil {
		if cerr := a.Cancel(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %v", apperror.ErrCanceled, err)
	}
	return a.SubmitCard(ctx, tok)
}

// RetryConfirmation repeats the backend confirmation of a payment the
// provider already captured. It never charges the card again.
func (a *Attempt) RetryConfirmation(ctx context.Context) error {
	if err := a.start("retry confirmation", CapturedUnconfirmed); err != nil {
		return err
	}
	defer a.done()
	a.setStatus(ServerConfirming)
	return a.confirmServer(ctx)
}

// RetryPayment discards the current intent and requests a new one for the
// same hold. Only failed attempts that still hold their seats qualify.
func (a *Attempt) RetryPayment(ctx context.Context) error {
	if err := a.start("retry payment", Failed); err != nil {
		return err
	}
	defer a.done()

	a.mu.Lock()
	ok := a.retryable && a.reservation != nil
	expired := ok && a.reservation.Expired(a.o.now())
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: attempt %s cannot be retried", apperror.ErrInvalidState, a.id)
	}
	if expired {
		return a.fail(apperror.ErrHoldExpired, false)
	}
	a.setStatus(HoldRequested)
	return a.requestPayment(ctx)
}

// Cancel abandons an attempt waiting for card details. The hold stays on
// the backend until it expires, so the reservation can be resumed later.
func (a *Attempt) Cancel() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy || a.status != AwaitingCard {
		return fmt.Errorf("%w: cannot cancel from %s", apperror.ErrInvalidState, a.status)
	}
	a.status = Canceled
	a.intent = nil
	a.o.log.Info("checkout canceled", "attempt", a.id)
	return nil
}

// requestPayment asks the backend for a payment on the held reservation.
// The caller owns the step.
func (a *Attempt) requestPayment(ctx context.Context) error {
	a.mu.Lock()
	res := *a.reservation
	req := model.PaymentRequest{Reserva: res.ID, Metodo: a.method, Monto: a.amount}
	a.intent = nil
	a.mu.Unlock()

	resp, err := a.o.payments.Create(ctx, req)
	if err != nil {
		return a.fail(fmt.Errorf("request payment: %w", err), true)
	}
	if !resp.IsIntent() {
		rec := model.PaymentRecord{ID: resp.ID, Estado: resp.Estado, Metodo: resp.Metodo, Monto: req.Monto}
		if resp.Monto != nil && *resp.Monto != req.Monto {
			return a.mismatch(res.ID, "payment", *resp.Monto, req.Monto)
		}
		return a.complete(ctx, &rec)
	}
	if resp.PagoID == 0 {
		return a.fail(errors.New("request payment: intent response without pago_id"), true)
	}

	a.mu.Lock()
	a.intent = &model.PaymentIntent{
		ClientSecret: resp.ClientSecret,
		PaymentID:    uint64(resp.PagoID),
		Status:       "requires_payment_method",
	}
	a.status = AwaitingCard
	a.err = nil
	a.retryable = false
	a.mu.Unlock()
	a.o.log.Debug("awaiting card", "attempt", a.id, "payment_id", uint64(resp.PagoID))
	return nil
}

func (a *Attempt) confirmServer(ctx context.Context) error {
	a.mu.Lock()
	pid := a.intent.PaymentID
	iid := a.intentID
	a.mu.Unlock()

	rec, err := a.o.payments.Confirm(ctx, pid, iid)
	if err != nil {
		perr := &apperror.PartialConfirmationError{
			PaymentID:       strconv.FormatUint(pid, 10),
			PaymentIntentID: iid,
			Cause:           err,
		}
		a.mu.Lock()
		a.status = CapturedUnconfirmed
		a.err = perr
		a.retryable = false
		a.mu.Unlock()
		a.o.log.Error("payment captured but not confirmed", "attempt", a.id, "payment_id", pid, "intent", iid, "error", err)
		return perr
	}
	return a.complete(ctx, &rec)
}

// complete fetches the finalized reservation, publishes the confirmation
// and asks the scanner to rescan.
func (a *Attempt) complete(ctx context.Context, rec *model.PaymentRecord) error {
	a.mu.Lock()
	held := *a.reservation
	amount := a.amount
	a.mu.Unlock()

	final, err := a.o.reservations.Get(ctx, held.ID)
	if err != nil {
		a.o.log.Warn("fetch confirmed reservation failed, reporting held copy", "reservation_id", held.ID, "error", err)
		final = held
	}
	if final.Total != 0 && final.Total != amount {
		return a.mismatch(final.ID, "reservation", final.Total, amount)
	}
	total := amount
	result := Result{Reservation: final, Total: total, Estado: model.EstadoCompletado, Payment: rec}

	a.mu.Lock()
	a.reservation = &final
	a.result = &result
	a.intent = nil
	a.intentID = ""
	a.status = Completed
	a.err = nil
	a.retryable = false
	a.mu.Unlock()
	a.o.log.Info("checkout completed", "attempt", a.id, "reservation_id", final.ID, "estado", final.Estado, "total", total.String())

	ev := queue.ReservationConfirmedEvent{
		ReservationID: final.ID,
		TripID:        a.trip,
		Total:         total,
		Method:        a.method,
		ConfirmedAt:   a.o.now().UTC(),
	}
	if a.o.userID != nil {
		ev.UserID = a.o.userID()
	}
	if rec != nil {
		ev.PaymentID = rec.ID
	}
	for _, s := range a.seats {
		ev.Seats = append(ev.Seats, s.Numero)
	}
	if err := a.o.publisher.PublishReservationConfirmed(ctx, ev); err != nil {
		a.o.log.Warn("publish confirmation failed", "reservation_id", final.ID, "error", err)
	}
	if a.o.refresher != nil {
		a.o.refresher.RefreshPending(ctx)
	}
	return nil
}

// mismatch fails the attempt because the backend charged a different
// amount than the seats shown. The server figure wins; it is never adopted
// silently.
func (a *Attempt) mismatch(reservationID uint64, source string, charged, shown model.Money) error {
	a.o.log.Error("charged amount differs from selected seats", "attempt", a.id, "reservation_id", reservationID,
		"source", source, "charged", charged.String(), "shown", shown.String())
	return a.fail(fmt.Errorf("%w: backend %s total %s, selected seats total %s",
		apperror.ErrAmountMismatch, source, charged, shown), false)
}

// release drops a hold that must not be paid. Best effort.
func (a *Attempt) release(ctx context.Context, id uint64) {
	if err := a.o.reservations.Delete(ctx, id); err != nil {
		a.o.log.Warn("release hold failed", "reservation_id", id, "error", err)
	}
}

func (a *Attempt) start(op string, allowed ...Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return fmt.Errorf("%w: %s while another step is running", apperror.ErrInvalidState, op)
	}
	if !slices.Contains(allowed, a.status) {
		return fmt.Errorf("%w: cannot %s from %s", apperror.ErrInvalidState, op, a.status)
	}
	a.busy = true
	return nil
}

func (a *Attempt) done() {
	now := a.o.now()
	a.mu.Lock()
	a.busy = false
	a.touched = now
	a.mu.Unlock()
}

// expired reports whether the attempt sat idle past retention. Running
// attempts and captured but unconfirmed payments never expire.
func (a *Attempt) expired(now time.Time, retention time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy || a.status == CapturedUnconfirmed {
		return false
	}
	return now.Sub(a.touched) > retention
}

func (a *Attempt) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *Attempt) fail(err error, retryable bool) error {
	a.mu.Lock()
	from := a.status
	a.status = Failed
	a.err = err
	a.retryable = retryable && a.reservation != nil
	a.mu.Unlock()
	a.o.log.Warn("checkout step failed", "attempt", a.id, "from", from, "kind", apperror.Kind(err), "error", err)
	return err
}
