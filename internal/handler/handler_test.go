package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/credential"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/handler"
	"github.com/iliyamo/fleet-booking-client/internal/logging"
	"github.com/iliyamo/fleet-booking-client/internal/middleware"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/payment"
	"github.com/iliyamo/fleet-booking-client/internal/queue"
	"github.com/iliyamo/fleet-booking-client/internal/reconcile"
	"github.com/iliyamo/fleet-booking-client/internal/repository"
	"github.com/iliyamo/fleet-booking-client/internal/router"
	"github.com/iliyamo/fleet-booking-client/internal/session"
)

// platform fakes the booking API. Payment ids are 100+reservation id and
// client secrets are pi_<reservation>_secret_x.
type platform struct {
	mu           sync.Mutex
	nextID       uint64
	reservations map[uint64]model.Reservation
	trips        []model.Trip
	marked       []string

	confirmFails atomic.Int32
	confirms     atomic.Int32
}

func newPlatform() *platform {
	return &platform{
		nextID:       10,
		reservations: map[uint64]model.Reservation{},
		trips:        []model.Trip{{ID: 3, Origen: "Lima", Destino: "Cusco"}},
	}
}

func (p *platform) seed(trip uint64, exp time.Duration) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	e := time.Now().Add(exp)
	p.reservations[p.nextID] = model.Reservation{
		ID: p.nextID, Estado: model.EstadoPendientePago, Total: 2500, ExpiraEn: &e, Viaje: model.Ref(trip),
		Asientos: []model.SeatSelection{{Numero: 4, Precio: 2500}},
	}
	return p.nextID
}

func (p *platform) setEstado(id uint64, estado string) {
	p.mu.Lock()
	r := p.reservations[id]
	r.Estado = estado
	r.Pagado = estado == model.EstadoConfirmada
	p.reservations[id] = r
	p.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id
}

func (p *platform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var c model.Credentials
		json.NewDecoder(r.Body).Decode(&c)
		if c.Password != "x" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found"})
			return
		}
		writeJSON(w, http.StatusOK, model.TokenPair{Access: "tok", Refresh: "ref"})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "email": "c@fleet.test", "rol": "CLIENTE"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /reservas/", func(w http.ResponseWriter, r *http.Request) {
		var req model.HoldRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, s := range req.Asientos {
			if s.Numero == 13 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"asientos_no_disponibles": []int{13}})
				return
			}
		}
		p.mu.Lock()
		p.nextID++
		e := time.Now().Add(15 * time.Minute)
		res := model.Reservation{ID: p.nextID, Estado: model.EstadoPendientePago, Asientos: req.Asientos,
			Total: req.Total, ExpiraEn: &e, Viaje: model.Ref(req.Viaje)}
		p.reservations[res.ID] = res
		p.mu.Unlock()
		writeJSON(w, http.StatusCreated, res)
	})
	mux.HandleFunc("GET /reservas/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		list := []model.Reservation{}
		for _, res := range p.reservations {
			if est := r.URL.Query().Get("estado"); est == "" || res.Estado == est {
				list = append(list, res)
			}
		}
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "results": list})
	})
	mux.HandleFunc("GET /reservas/{id}/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		res, ok := p.reservations[pathID(r)]
		p.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No encontrado."})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
	mux.HandleFunc("DELETE /reservas/{id}/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		delete(p.reservations, pathID(r))
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /pagos/crear_pago/", func(w http.ResponseWriter, r *http.Request) {
		var req model.PaymentRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Metodo == model.MetodoTarjeta {
			writeJSON(w, http.StatusCreated, map[string]any{
				"client_secret": "pi_" + strconv.FormatUint(req.Reserva, 10) + "_secret_x",
				"pago_id":       100 + req.Reserva,
			})
			return
		}
		p.setEstado(req.Reserva, model.EstadoConfirmada)
		writeJSON(w, http.StatusCreated, model.PaymentRecord{ID: 100 + req.Reserva, Estado: "completado", Metodo: req.Metodo, Monto: req.Monto})
	})
	mux.HandleFunc("POST /pagos/{id}/confirmar/", func(w http.ResponseWriter, r *http.Request) {
		p.confirms.Add(1)
		if p.confirmFails.Load() > 0 {
			p.confirmFails.Add(-1)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
			return
		}
		pid := pathID(r)
		p.setEstado(pid-100, model.EstadoConfirmada)
		writeJSON(w, http.StatusOK, model.PaymentRecord{ID: pid, Estado: "completado", Metodo: model.MetodoTarjeta})
	})
	mux.HandleFunc("GET /viajes/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"results": p.trips})
	})
	mux.HandleFunc("GET /notificaciones/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Notification{{ID: 1, Titulo: "Reserva", Mensaje: "Pago recibido"}})
	})
	mux.HandleFunc("POST /notificaciones/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.marked = append(p.marked, r.URL.Path)
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type provider struct {
	decline atomic.Bool
}

func (p *provider) ConfirmCardPayment(ctx context.Context, secret string, tok payment.CardToken) (payment.Confirmation, error) {
	if p.decline.Swap(false) {
		return payment.Confirmation{}, &apperror.ProviderDeclineError{Code: "card_declined", Message: "Your card was declined."}
	}
	id, err := payment.IntentIDFromSecret(secret)
	if err != nil {
		return payment.Confirmation{}, err
	}
	return payment.Confirmation{IntentID: id, Status: "succeeded"}, nil
}

type publisher struct {
	mu     sync.Mutex
	events []queue.ReservationConfirmedEvent
}

func (p *publisher) PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *publisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	e    *echo.Echo
	p    *platform
	prov *provider
	pub  *publisher
	orch *checkout.Orchestrator
	scan *reconcile.Scanner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := newPlatform()
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)

	log := logging.Discard()
	sessions := session.NewManager(credential.NewMemoryStore(), session.Options{BaseURL: srv.URL, Logger: log})
	api := gateway.New(srv.URL, srv.Client(), sessions, log)
	reservations := repository.NewReservationRepo(api)
	scanner := reconcile.New(reconcile.Options{Reservations: reservations, Logger: log})
	h := &harness{p: p, prov: &provider{}, pub: &publisher{}, scan: scanner}
	h.orch = checkout.New(checkout.Options{
		Reservations: reservations,
		Payments:     repository.NewPaymentRepo(api),
		Provider:     h.prov,
		Publisher:    h.pub,
		Refresher:    scanner,
		Logger:       log,
	})
	sessions.OnLogout(func() {
		h.orch.Reset()
		scanner.UnmountAll()
	})

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterSession(e, handler.NewSessionHandler(sessions), sessions, middleware.LoginThrottle(nil, "", 0, 0))
	router.RegisterViews(e, handler.NewViewHandler(scanner, repository.NewTripRepo(api), h.orch), sessions)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(h.orch), sessions)
	router.RegisterNotifications(e, handler.NewNotificationHandler(repository.NewNotificationRepo(api)), sessions)
	h.e = e
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

// doCanceled sends a request whose client has already gone away.
func (h *harness) doCanceled(method, path string) *httptest.ResponseRecorder {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(method, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if rec := h.do(http.MethodPost, "/v1/session/login", `{"email":"c@fleet.test","password":"x"}`); rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, status, rec.Body)
	}
	if rec.Body.Len() == 0 {
		return nil
	}
	return decode(t, rec)
}

const twoSeats = `{"trip":3,"seats":[{"numero":1,"precio":"25.00"},{"numero":2,"precio":"25.00"}]}`

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/v1/notifications", "/v1/session/me", "/v1/checkout/x"} {
		body := expect(t, h.do(http.MethodGet, path, ""), http.StatusUnauthorized)
		if body["kind"] != "auth_invalid" || body["redirect"] != "/login" {
			t.Errorf("%s: body = %v", path, body)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	body := expect(t, h.do(http.MethodPost, "/v1/session/login", `{"email":"c@fleet.test","password":"nope"}`), http.StatusUnauthorized)
	if body["kind"] != "invalid_credentials" {
		t.Errorf("bad login kind = %v", body["kind"])
	}
	body = expect(t, h.do(http.MethodPost, "/v1/session/login", `{"email":""}`), http.StatusBadRequest)
	if body["kind"] != "validation" {
		t.Errorf("empty login kind = %v", body["kind"])
	}

	h.login(t)
	body = expect(t, h.do(http.MethodGet, "/v1/session", ""), http.StatusOK)
	if body["state"] != "authenticated" {
		t.Errorf("state = %v", body["state"])
	}
	if u, _ := body["user"].(map[string]any); u["email"] != "c@fleet.test" {
		t.Errorf("user = %v", body["user"])
	}
	body = expect(t, h.do(http.MethodGet, "/v1/session/me", ""), http.StatusOK)
	if body["rol"] != "CLIENTE" {
		t.Errorf("me = %v", body)
	}

	expect(t, h.do(http.MethodPost, "/v1/session/logout", ""), http.StatusNoContent)
	body = expect(t, h.do(http.MethodGet, "/v1/session", ""), http.StatusOK)
	if body["state"] != "anonymous" || body["user"] != nil {
		t.Errorf("after logout = %v", body)
	}
}

func TestLogoutClearsCheckoutAndViews(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.p.seed(3, time.Hour)

	body := expect(t, h.do(http.MethodPost, "/v1/checkout", twoSeats), http.StatusCreated)
	id := body["id"].(string)
	body = expect(t, h.do(http.MethodPost, "/v1/views", ""), http.StatusCreated)
	view := body["view"].(string)

	expect(t, h.do(http.MethodPost, "/v1/session/logout", ""), http.StatusNoContent)
	if h.orch.Len() != 0 || h.scan.Len() != 0 {
		t.Fatalf("after logout attempts = %d views = %d", h.orch.Len(), h.scan.Len())
	}

	h.login(t)
	expect(t, h.do(http.MethodGet, "/v1/checkout/"+id, ""), http.StatusNotFound)
	expect(t, h.do(http.MethodGet, "/v1/views/"+view+"/pending", ""), http.StatusNotFound)
}

func TestCheckoutCardFlow(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	body := expect(t, h.do(http.MethodPost, "/v1/checkout", twoSeats), http.StatusCreated)
	if body["status"] != "awaiting_card" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["amount"] != "50.00" {
		t.Errorf("amount = %v, want 50.00", body["amount"])
	}
	if s, _ := body["client_secret"].(string); !strings.Contains(s, "_secret_") {
		t.Errorf("client_secret = %v", body["client_secret"])
	}
	id := body["id"].(string)

	body = expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/card", `{"payment_method":"pm_card_visa"}`), http.StatusOK)
	if body["status"] != "completed" {
		t.Fatalf("status = %v body=%v", body["status"], body)
	}
	if _, ok := body["client_secret"]; ok {
		t.Error("client_secret exposed after completion")
	}
	result := body["result"].(map[string]any)
	if result["estado"] != "completado" {
		t.Errorf("result = %v", result)
	}
	if res := result["reservation"].(map[string]any); res["estado"] != model.EstadoConfirmada {
		t.Errorf("reservation = %v", res)
	}
	if h.pub.count() != 1 {
		t.Errorf("published %d events, want 1", h.pub.count())
	}

	body = expect(t, h.do(http.MethodGet, "/v1/checkout/"+id, ""), http.StatusOK)
	if body["status"] != "completed" {
		t.Errorf("get status = %v", body["status"])
	}
	expect(t, h.do(http.MethodDelete, "/v1/checkout/"+id, ""), http.StatusNoContent)
	if h.orch.Len() != 0 {
		t.Errorf("attempts = %d after delete", h.orch.Len())
	}
}

func TestCheckoutCashCompletesImmediately(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	body := expect(t, h.do(http.MethodPost, "/v1/checkout",
		`{"trip":3,"method":"efectivo","seats":[{"numero":1,"precio":10}]}`), http.StatusCreated)
	if body["status"] != "completed" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestCheckoutDeclineThenRetryPayment(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	id := expect(t, h.do(http.MethodPost, "/v1/checkout", twoSeats), http.StatusCreated)["id"].(string)

	h.prov.decline.Store(true)
	body := expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/card", `{"payment_method":"pm_card_visa"}`), http.StatusPaymentRequired)
	if body["kind"] != "provider_decline" || body["provider_message"] != "Your card was declined." {
		t.Errorf("decline body = %v", body)
	}
	att := body["attempt"].(map[string]any)
	if att["status"] != "failed" || att["retryable"] != true {
		t.Errorf("attempt = %v", att)
	}

	body = expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/retry-payment", ""), http.StatusOK)
	if body["status"] != "awaiting_card" {
		t.Fatalf("after retry = %v", body["status"])
	}
	body = expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/card", `{"payment_method":"pm_card_visa"}`), http.StatusOK)
	if body["status"] != "completed" {
		t.Errorf("final = %v", body["status"])
	}
}

func TestCheckoutPartialConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	id := expect(t, h.do(http.MethodPost, "/v1/checkout", twoSeats), http.StatusCreated)["id"].(string)

	h.p.confirmFails.Store(1)
	body := expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/card", `{"payment_method":"pm_card_visa"}`), http.StatusBadGateway)
	if body["kind"] != "partial_confirmation" || body["payment_id"] == "" || body["support"] == nil {
		t.Errorf("partial body = %v", body)
	}
	if att := body["attempt"].(map[string]any); att["status"] != "captured_unconfirmed" {
		t.Errorf("attempt status = %v", att["status"])
	}

	body = expect(t, h.do(http.MethodDelete, "/v1/checkout/"+id, ""), http.StatusConflict)
	if body["kind"] != "invalid_state" {
		t.Errorf("delete kind = %v", body["kind"])
	}

	body = expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/retry-confirmation", ""), http.StatusOK)
	if body["status"] != "completed" {
		t.Errorf("after retry = %v", body["status"])
	}
	if n := h.p.confirms.Load(); n != 2 {
		t.Errorf("confirm calls = %d, want 2", n)
	}
}

func TestCheckoutErrors(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	t.Run("no seats", func(t *testing.T) {
		body := expect(t, h.do(http.MethodPost, "/v1/checkout", `{"trip":3,"seats":[]}`), http.StatusBadRequest)
		if body["kind"] != "validation" {
			t.Errorf("kind = %v", body["kind"])
		}
		if h.orch.Len() != 0 {
			t.Errorf("attempt kept after validation failure")
		}
	})

	t.Run("seat taken", func(t *testing.T) {
		body := expect(t, h.do(http.MethodPost, "/v1/checkout",
			`{"trip":3,"seats":[{"numero":13,"precio":"5.00"}]}`), http.StatusConflict)
		if body["kind"] != "conflict" {
			t.Errorf("kind = %v", body["kind"])
		}
		if att, _ := body["attempt"].(map[string]any); att["status"] != "failed" {
			t.Errorf("attempt = %v", body["attempt"])
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		body := expect(t, h.do(http.MethodGet, "/v1/checkout/nope", ""), http.StatusNotFound)
		if body["kind"] != "not_found" {
			t.Errorf("kind = %v", body["kind"])
		}
	})

	t.Run("illegal step", func(t *testing.T) {
		id := expect(t, h.do(http.MethodPost, "/v1/checkout", twoSeats), http.StatusCreated)["id"].(string)
		body := expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/retry-confirmation", ""), http.StatusConflict)
		if body["kind"] != "invalid_state" {
			t.Errorf("kind = %v", body["kind"])
		}
		expect(t, h.do(http.MethodDelete, "/v1/checkout/"+id, ""), http.StatusNoContent)
	})
}

func TestViewsResumePending(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	listed := h.p.seed(3, time.Hour)
	unlisted := h.p.seed(9, time.Hour)
	h.p.seed(3, -time.Minute)

	body := expect(t, h.do(http.MethodPost, "/v1/views", ""), http.StatusCreated)
	view := body["view"].(string)
	pending := body["pending"].(map[string]any)
	if list := pending["reservations"].([]any); len(list) != 2 {
		t.Fatalf("pending = %v, want 2 unexpired", list)
	}
	if pending["notice"] == "" {
		t.Error("missing notice")
	}

	base := "/v1/views/" + view
	body = expect(t, h.do(http.MethodPost, base+"/resume/"+strconv.FormatUint(unlisted, 10), ""), http.StatusUnprocessableEntity)
	if body["kind"] != "locate_manually" {
		t.Errorf("unlisted kind = %v", body["kind"])
	}

	body = expect(t, h.do(http.MethodPost, base+"/resume/"+strconv.FormatUint(listed, 10), ""), http.StatusCreated)
	if body["status"] != "awaiting_card" || body["resumed"] != true {
		t.Fatalf("resume = %v", body)
	}
	id := body["id"].(string)
	body = expect(t, h.do(http.MethodPost, "/v1/checkout/"+id+"/card", `{"payment_method":"pm_card_visa"}`), http.StatusOK)
	if body["status"] != "completed" {
		t.Fatalf("resumed checkout = %v", body["status"])
	}

	// completion rescans live views
	body = expect(t, h.do(http.MethodGet, base+"/pending", ""), http.StatusOK)
	if list := body["pending"].(map[string]any)["reservations"].([]any); len(list) != 1 {
		t.Errorf("pending after completion = %v", list)
	}

	expect(t, h.do(http.MethodDelete, base, ""), http.StatusNoContent)
	body = expect(t, h.do(http.MethodGet, base+"/pending", ""), http.StatusNotFound)
	if body["kind"] != "not_found" {
		t.Errorf("kind = %v", body["kind"])
	}
}

func TestViewScanOutlivesClient(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.p.seed(3, time.Hour)

	body := expect(t, h.doCanceled(http.MethodPost, "/v1/views"), http.StatusCreated)
	view := body["view"].(string)
	if list := body["pending"].(map[string]any)["reservations"].([]any); len(list) != 1 {
		t.Fatalf("pending = %v", list)
	}
	body = expect(t, h.do(http.MethodGet, "/v1/views/"+view+"/pending", ""), http.StatusOK)
	if list := body["pending"].(map[string]any)["reservations"].([]any); len(list) != 1 {
		t.Errorf("latched pending = %v", list)
	}
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	body := expect(t, h.do(http.MethodGet, "/v1/notifications?unread=true", ""), http.StatusOK)
	if list := body["notifications"].([]any); len(list) != 1 {
		t.Errorf("notifications = %v", list)
	}
	expect(t, h.do(http.MethodPost, "/v1/notifications/1/read", ""), http.StatusNoContent)
	expect(t, h.do(http.MethodPost, "/v1/notifications/read", `{"ids":[1,2]}`), http.StatusNoContent)
	expect(t, h.do(http.MethodPost, "/v1/notifications/read-all", ""), http.StatusNoContent)

	body = expect(t, h.do(http.MethodPost, "/v1/notifications/read", `{"ids":[]}`), http.StatusBadRequest)
	if body["kind"] != "validation" {
		t.Errorf("empty ids kind = %v", body["kind"])
	}
	expect(t, h.do(http.MethodPost, "/v1/notifications/abc/read", ""), http.StatusBadRequest)

	want := []string{"/notificaciones/1/leer/", "/notificaciones/marcar_leidas/", "/notificaciones/marcar_todas/"}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if strings.Join(h.p.marked, ",") != strings.Join(want, ",") {
		t.Errorf("marked = %v, want %v", h.p.marked, want)
	}
}
