package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/logging"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/repository"
)

type lister struct {
	mu         sync.Mutex
	calls      atomic.Int32
	gate       chan struct{}
	started    chan struct{}
	list       []model.Reservation
	recognized bool
	err        error
	errs       []error // consumed one per call before err applies
	lastFilter repository.ReservationFilter
}

func (l *lister) List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, bool, error) {
	l.calls.Add(1)
	if l.started != nil {
		l.started <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastFilter = f
	err := l.err
	if len(l.errs) > 0 {
		err, l.errs = l.errs[0], l.errs[1:]
	}
	return l.list, l.recognized, err
}

func at(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func pending(id, trip uint64, exp time.Duration) model.Reservation {
	return model.Reservation{ID: id, Estado: model.EstadoPendientePago, Total: 5000, ExpiraEn: at(exp), Viaje: model.Ref(trip)}
}

func newScanner(l *lister) *Scanner {
	return New(Options{Reservations: l, Logger: logging.Discard()})
}

func TestScanLatchedPerActivation(t *testing.T) {
	l := &lister{recognized: true, list: []model.Reservation{pending(1, 3, time.Hour)}}
	s := newScanner(l)
	v := s.Mount()
	ctx := context.Background()

	first, err := v.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	second, err := v.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if n := l.calls.Load(); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
	if first.Len() != 1 || second.Len() != 1 {
		t.Errorf("lens = %d/%d", first.Len(), second.Len())
	}
	if l.lastFilter.Estado != model.EstadoPendientePago {
		t.Errorf("filter = %+v", l.lastFilter)
	}
	if first.Notice == "" {
		t.Error("no notice for a non-empty set")
	}
}

func TestConcurrentScansShareOneRequest(t *testing.T) {
	l := &lister{recognized: true, gate: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newScanner(l)
	v := s.Mount()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := v.Scan(context.Background()); err != nil {
				t.Errorf("Scan: %v", err)
			}
		}()
	}
	<-l.started
	close(l.gate)
	wg.Wait()
	if n := l.calls.Load(); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
}

func TestRemountScansAgain(t *testing.T) {
	l := &lister{recognized: true}
	s := newScanner(l)
	ctx := context.Background()

	v := s.Mount()
	v.Scan(ctx)
	v.Scan(ctx)
	v.Unmount()

	v2 := s.Mount()
	v2.Scan(ctx)
	if n := l.calls.Load(); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
	if _, err := v.Scan(ctx); !errors.Is(err, apperror.ErrViewClosed) {
		t.Errorf("Scan on unmounted view: %v", err)
	}
}

func TestUnmountDiscardsInFlightResult(t *testing.T) {
	l := &lister{recognized: true, gate: make(chan struct{}), started: make(chan struct{}, 1),
		list: []model.Reservation{pending(1, 3, time.Hour)}}
	s := newScanner(l)
	v := s.Mount()

	errc := make(chan error, 1)
	go func() {
		_, err := v.Scan(context.Background())
		errc <- err
	}()
	<-l.started
	v.Unmount()
	close(l.gate)

	if err := <-errc; !errors.Is(err, apperror.ErrViewClosed) {
		t.Fatalf("err = %v, want ErrViewClosed", err)
	}
	if _, ok := v.Pending(); ok {
		t.Error("result stored after unmount")
	}
	if _, ok := s.View(v.ID()); ok {
		t.Error("unmounted view still registered")
	}
}

func TestExpiredReservationsExcluded(t *testing.T) {
	l := &lister{recognized: true, list: []model.Reservation{
		pending(1, 3, -time.Minute),
		pending(2, 3, time.Hour),
		{ID: 3, Estado: model.EstadoConfirmada, ExpiraEn: at(time.Hour)},
		{ID: 4, Estado: model.EstadoPendientePago, ExpiraEn: at(time.Hour), EstaExpirada: true},
	}}
	set, err := newScanner(l).Mount().Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if set.Len() != 1 || set.Reservations[0].ID != 2 {
		t.Errorf("pending = %+v, want only reservation 2", set.Reservations)
	}
}

func TestUnrecognizedEnvelopeIsEmpty(t *testing.T) {
	l := &lister{recognized: false}
	set, err := newScanner(l).Mount().Scan(context.Background())
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if set.Len() != 0 || set.Notice != "" {
		t.Errorf("set = %+v, want empty", set)
	}
}

func TestScanErrorIsShared(t *testing.T) {
	l := &lister{err: apperror.ErrNetwork}
	v := newScanner(l).Mount()
	if _, err := v.Scan(context.Background()); !errors.Is(err, apperror.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	if _, err := v.Scan(context.Background()); !errors.Is(err, apperror.ErrNetwork) {
		t.Fatalf("second err = %v", err)
	}
	if l.calls.Load() != 1 {
		t.Errorf("list calls = %d", l.calls.Load())
	}
}

func TestCanceledScanIsNotLatched(t *testing.T) {
	l := &lister{recognized: true, errs: []error{context.Canceled}, list: []model.Reservation{pending(1, 3, time.Hour)}}
	v := newScanner(l).Mount()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("first err = %v, want context.Canceled", err)
	}
	if _, ok := v.Pending(); ok {
		t.Error("canceled scan stored a result")
	}

	set, err := v.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if set.Len() != 1 || l.calls.Load() != 2 {
		t.Errorf("len = %d calls = %d, want 1/2", set.Len(), l.calls.Load())
	}
	if _, err := v.Scan(context.Background()); err != nil || l.calls.Load() != 2 {
		t.Errorf("successful scan not latched: err=%v calls=%d", err, l.calls.Load())
	}
}

func TestWaiterFetchesAfterCanceledScan(t *testing.T) {
	l := &lister{recognized: true, gate: make(chan struct{}), started: make(chan struct{}, 2),
		errs: []error{context.DeadlineExceeded}, list: []model.Reservation{pending(1, 3, time.Hour)}}
	v := newScanner(l).Mount()

	first := make(chan error, 1)
	go func() {
		_, err := v.Scan(context.Background())
		first <- err
	}()
	<-l.started

	type result struct {
		set PendingSet
		err error
	}
	second := make(chan result, 1)
	go func() {
		set, err := v.Scan(context.Background())
		second <- result{set, err}
	}()
	time.Sleep(20 * time.Millisecond) // second caller waits on the running fetch
	close(l.gate)

	if err := <-first; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first err = %v", err)
	}
	r := <-second
	if r.err != nil || r.set.Len() != 1 {
		t.Fatalf("waiter got %+v, %v", r.set, r.err)
	}
	if n := l.calls.Load(); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
}

func TestIdleViewsAreUnmounted(t *testing.T) {
	l := &lister{recognized: true}
	now := time.Now()
	s := New(Options{Reservations: l, Logger: logging.Discard(), Now: func() time.Time { return now }, IdleTTL: time.Minute})

	idle := s.Mount()
	busy := s.Mount()
	now = now.Add(45 * time.Second)
	if _, err := busy.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	now = now.Add(30 * time.Second)
	fresh := s.Mount()

	if _, ok := s.View(idle.ID()); ok {
		t.Error("idle view still mounted")
	}
	if _, err := idle.Scan(context.Background()); !errors.Is(err, apperror.ErrViewClosed) {
		t.Errorf("idle view scan err = %v", err)
	}
	for _, v := range []*View{busy, fresh} {
		if _, ok := s.View(v.ID()); !ok {
			t.Errorf("view %s dropped", v.ID())
		}
	}

	s.UnmountAll()
	if s.Len() != 0 {
		t.Errorf("views after UnmountAll = %d", s.Len())
	}
	if _, err := busy.Scan(context.Background()); !errors.Is(err, apperror.ErrViewClosed) {
		t.Errorf("scan after UnmountAll err = %v", err)
	}
}

func TestRefreshBypassesLatch(t *testing.T) {
	l := &lister{recognized: true, list: []model.Reservation{pending(1, 3, time.Hour)}}
	s := newScanner(l)
	v := s.Mount()
	ctx := context.Background()

	v.Scan(ctx)
	l.list = nil
	s.RefreshPending(ctx)
	if n := l.calls.Load(); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
	set, ok := v.Pending()
	if !ok || set.Len() != 0 {
		t.Errorf("pending after refresh = %+v ok=%v", set, ok)
	}
	if _, err := v.Scan(ctx); err != nil || l.calls.Load() != 2 {
		t.Errorf("Scan after refresh hit the API again")
	}
}

type resumer struct {
	got []model.Reservation
}

func (r *resumer) Resume(ctx context.Context, res model.Reservation, method string) (*checkout.Attempt, error) {
	r.got = append(r.got, res)
	return nil, nil
}

func TestResume(t *testing.T) {
	listing := []model.Trip{{ID: 3}, {ID: 4}}
	ctx := context.Background()

	t.Run("listed trip", func(t *testing.T) {
		l := &lister{recognized: true, list: []model.Reservation{pending(1, 3, time.Hour)}}
		r := &resumer{}
		if _, err := newScanner(l).Mount().Resume(ctx, 1, listing, r); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if len(r.got) != 1 || r.got[0].ID != 1 {
			t.Errorf("resumed %+v", r.got)
		}
	})

	t.Run("trip not listed", func(t *testing.T) {
		l := &lister{recognized: true, list: []model.Reservation{pending(1, 9, time.Hour)}}
		r := &resumer{}
		_, err := newScanner(l).Mount().Resume(ctx, 1, listing, r)
		if !errors.Is(err, apperror.ErrLocateManually) {
			t.Fatalf("err = %v, want ErrLocateManually", err)
		}
		if len(r.got) != 0 {
			t.Error("resumed despite missing trip")
		}
	})

	t.Run("hold expired since scan", func(t *testing.T) {
		l := &lister{recognized: true, list: []model.Reservation{pending(1, 3, time.Hour)}}
		s := newScanner(l)
		v := s.Mount()
		v.Scan(ctx)
		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := v.Resume(ctx, 1, listing, &resumer{}); !errors.Is(err, apperror.ErrHoldExpired) {
			t.Fatalf("err = %v, want ErrHoldExpired", err)
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		l := &lister{recognized: true}
		if _, err := newScanner(l).Mount().Resume(ctx, 5, listing, &resumer{}); !errors.Is(err, apperror.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}
