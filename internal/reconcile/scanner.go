// Package reconcile finds reservations the user left awaiting payment and
// offers to resume them. A scan runs once per view activation: each Mount
// returns a View whose first Scan hits the API and whose later or
// concurrent Scans share that result.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/repository"
)

// Lister lists reservations; *repository.ReservationRepo satisfies it.
type Lister interface {
	List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, bool, error)
}

// Resumer re-enters checkout for an existing hold.
type Resumer interface {
	Resume(ctx context.Context, res model.Reservation, method string) (*checkout.Attempt, error)
}

// PendingSet is the result of one scan: reservations still awaiting
// payment whose hold has not expired. It is never persisted.
type PendingSet struct {
	Reservations []model.Reservation `json:"reservations"`
	Notice       string              `json:"notice,omitempty"`
	ScannedAt    time.Time           `json:"scanned_at"`
}

func (p PendingSet) Len() int { return len(p.Reservations) }

// Find returns the pending reservation with id.
func (p PendingSet) Find(id uint64) (model.Reservation, bool) {
	for _, r := range p.Reservations {
		if r.ID == id {
			return r, true
		}
	}
	return model.Reservation{}, false
}

type Options struct {
	Reservations Lister
	Logger       *slog.Logger
	Now          func() time.Time
	// IdleTTL drops views nobody touched for this long; 0 means 30m.
	IdleTTL time.Duration
}

const defaultIdleTTL = 30 * time.Minute

// Scanner creates views and rescans the live ones on demand.
type Scanner struct {
	list Lister
	log  *slog.Logger
	now  func() time.Time
	idle time.Duration

	mu    sync.Mutex
	views map[string]*View
}

func New(opts Options) *Scanner {
	s := &Scanner{list: opts.Reservations, log: opts.Logger, now: opts.Now, idle: opts.IdleTTL, views: map[string]*View{}}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "reconcile")
	if s.now == nil {
		s.now = time.Now
	}
	if s.idle <= 0 {
		s.idle = defaultIdleTTL
	}
	return s
}

// Mount starts a view activation with a fresh scan latch. Views left idle
// longer than the idle TTL are unmounted on the way.
func (s *Scanner) Mount() *View {
	now := s.now()
	v := &View{id: uuid.NewString(), s: s, closed: make(chan struct{}), touched: now}
	s.mu.Lock()
	var stale []*View
	for _, old := range s.views {
		if old.idleSince(now) > s.idle {
			stale = append(stale, old)
		}
	}
	s.views[v.id] = v
	s.mu.Unlock()
	for _, old := range stale {
		s.log.Debug("unmounting idle view", "view", old.id)
		old.Unmount()
	}
	return v
}

// UnmountAll ends every live view, e.g. when the user logs out.
func (s *Scanner) UnmountAll() {
	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()
	for _, v := range views {
		v.Unmount()
	}
}

// Len returns the number of mounted views.
func (s *Scanner) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// View returns a mounted view by id.
func (s *Scanner) View(id string) (*View, bool) {
	s.mu.Lock()
	v, ok := s.views[id]
	s.mu.Unlock()
	if ok {
		v.touch()
	}
	return v, ok
}

// RefreshPending rescans every mounted view. Failures are logged; views
// keep their previous result.
func (s *Scanner) RefreshPending(ctx context.Context) {
	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()
	for _, v := range views {
		if _, err := v.Refresh(ctx); err != nil && err != apperror.ErrViewClosed {
			s.log.Warn("refresh pending reservations failed", "view", v.id, "error", err)
		}
	}
}

func (s *Scanner) fetch(ctx context.Context) (PendingSet, error) {
	list, recognized, err := s.list.List(ctx, repository.ReservationFilter{Estado: model.EstadoPendientePago})
	if err != nil {
		return PendingSet{}, fmt.Errorf("scan pending reservations: %w", err)
	}
	if !recognized {
		s.log.Warn("unrecognized reservation list envelope, treating as empty")
	}
	now := s.now()
	set := PendingSet{Reservations: []model.Reservation{}, ScannedAt: now}
	for _, r := range list {
		if r.Pending(now) {
			set.Reservations = append(set.Reservations, r)
		}
	}
	if n := len(set.Reservations); n == 1 {
		set.Notice = "You have 1 reservation awaiting payment."
	} else if n > 1 {
		set.Notice = fmt.Sprintf("You have %d reservations awaiting payment.", n)
	}
	return set, nil
}

func (s *Scanner) remove(id string) {
	s.mu.Lock()
	delete(s.views, id)
	s.mu.Unlock()
}

// View is one activation of a screen that reconciles pending reservations.
type View struct {
	id     string
	s      *Scanner
	closed chan struct{}

	mu        sync.Mutex
	unmounted bool
	latched   bool
	inflight  chan struct{} // closed when the running scan fetch returns
	seq       uint64        // last fetch started
	resultSeq uint64        // fetch the stored result came from
	result    PendingSet
	err       error
	touched   time.Time
}

func (v *View) ID() string { return v.id }

func (v *View) touch() {
	now := v.s.now()
	v.mu.Lock()
	v.touched = now
	v.mu.Unlock()
}

// idleSince reports how long the view has been idle at now. A scan in
// flight counts as activity.
func (v *View) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inflight != nil {
		return 0
	}
	return now.Sub(v.touched)
}

// canceled reports errors that say nothing about the backend: the caller
// gave up. Such a result is never latched.
func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Scan returns the pending set for this activation. Only the first call
// performs I/O; concurrent and later calls wait for and share its result,
// errors included. A fetch that ended because its caller's context was
// canceled is not latched: the next caller fetches again. If the view is
// unmounted before the result arrives it is discarded and
// apperror.ErrViewClosed is returned.
func (v *View) Scan(ctx context.Context) (PendingSet, error) {
	for {
		v.mu.Lock()
		if v.unmounted {
			v.mu.Unlock()
			return PendingSet{}, apperror.ErrViewClosed
		}
		v.touched = v.s.now()
		if v.latched {
			set, err := v.result, v.err
			v.mu.Unlock()
			return set, err
		}
		if wait := v.inflight; wait != nil {
			v.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-v.closed:
				return PendingSet{}, apperror.ErrViewClosed
			case <-ctx.Done():
				return PendingSet{}, ctx.Err()
			}
		}
		done := make(chan struct{})
		v.inflight = done
		v.seq++
		seq := v.seq
		v.mu.Unlock()

		set, err := v.s.fetch(ctx)

		v.mu.Lock()
		v.inflight = nil
		close(done)
		if v.unmounted {
			v.mu.Unlock()
			v.s.log.Debug("view unmounted before scan finished, result dropped", "view", v.id)
			return PendingSet{}, apperror.ErrViewClosed
		}
		if canceled(err) {
			v.mu.Unlock()
			v.s.log.Debug("scan abandoned by caller, not latched", "view", v.id, "error", err)
			return PendingSet{}, err
		}
		v.store(seq, set, err)
		v.latched = true
		set, err = v.result, v.err
		v.mu.Unlock()
		if err == nil && set.Len() > 0 {
			v.s.log.Info("pending reservations found", "view", v.id, "count", set.Len())
		}
		return set, err
	}
}

// Refresh rescans regardless of the latch, e.g. after a checkout
// completed elsewhere.
func (v *View) Refresh(ctx context.Context) (PendingSet, error) {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return PendingSet{}, apperror.ErrViewClosed
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	set, err := v.s.fetch(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return PendingSet{}, apperror.ErrViewClosed
	}
	v.touched = v.s.now()
	if err != nil {
		return PendingSet{}, err
	}
	v.store(seq, set, nil)
	v.latched = true
	return v.result, nil
}

// store keeps set unless a newer fetch already stored its result.
func (v *View) store(seq uint64, set PendingSet, err error) {
	if seq < v.resultSeq {
		return
	}
	v.resultSeq = seq
	v.result, v.err = set, err
}

// Pending returns the last result and whether a scan has completed.
func (v *View) Pending() (PendingSet, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.resultSeq == 0 {
		return PendingSet{}, false
	}
	return v.result, true
}

// Unmount ends the activation. In-flight scans are discarded; a later
// Mount starts over with a fresh latch.
func (v *View) Unmount() {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	v.unmounted = true
	close(v.closed)
	v.mu.Unlock()
	v.s.remove(v.id)
}

// Resume hands a pending reservation back to checkout, reusing its hold.
// The hold must still be valid (apperror.ErrHoldExpired otherwise) and
// its trip must be in the caller's current listing; if it is not, the
// user has to locate it manually (apperror.ErrLocateManually).
func (v *View) Resume(ctx context.Context, reservationID uint64, listing []model.Trip, r Resumer) (*checkout.Attempt, error) {
	set, err := v.Scan(ctx)
	if err != nil {
		return nil, err
	}
	res, ok := set.Find(reservationID)
	if !ok {
		return nil, fmt.Errorf("%w: reservation %d is not pending", apperror.ErrNotFound, reservationID)
	}
	if res.Expired(v.s.now()) {
		return nil, apperror.ErrHoldExpired
	}
	if !model.ContainsTrip(listing, uint64(res.Viaje)) {
		return nil, fmt.Errorf("%w: trip %d is no longer listed", apperror.ErrLocateManually, uint64(res.Viaje))
	}
	return r.Resume(ctx, res, model.MetodoTarjeta)
}
