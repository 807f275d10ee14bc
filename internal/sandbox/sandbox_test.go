package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/florianilch/taplinks-cli/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t     *testing.T
	srv   *httptest.Server
	clock *clock
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	s, err := New(Config{
		SigningKey:     []byte("test-signing-key"),
		AccessTokenTTL: time.Minute,
		Now:            clk.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, clock: clk}
}

// do sends a request and returns the status and raw body.
func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("Marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.srv.URL+BasePath+path, reader)
	if err != nil {
		h.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Request-Id", "test-request")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.srv.Client().Do(req)
	if err != nil {
		h.t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("ReadAll: %v", err)
	}
	return resp.StatusCode, data
}

func decodeData[T any](t *testing.T, data []byte) T {
	t.Helper()
	var env model.Response[T]
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	if env.Meta["requestId"] != "test-request" {
		t.Errorf("meta requestId = %q, want test-request", env.Meta["requestId"])
	}
	return env.Data
}

func decodeError(t *testing.T, data []byte) model.ErrorObject {
	t.Helper()
	var env model.ErrorResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	return env.Error
}

func (h *harness) login() model.AuthTokenOutput {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "auth/login", model.LoginInput{
		PhoneNumber: DefaultPhoneNumber,
		Password:    DefaultPassword,
	})
	if status != http.StatusOK {
		h.t.Fatalf("login status = %d: %s", status, body)
	}
	out := decodeData[model.AuthTokenOutput](h.t, body)
	h.token = out.AccessToken
	return out
}

func (h *harness) createPayment(service string, amount float64) model.PaymentRequest {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "payment-requests", model.CreatePaymentRequestInput{
		Service: service,
		Amount:  amount,
		Expiry:  h.clock.now().Add(time.Hour).Format(time.RFC3339),
	})
	if status != http.StatusCreated {
		h.t.Fatalf("create status = %d: %s", status, body)
	}
	return decodeData[model.PaymentRequest](h.t, body)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	out := h.login()
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("login returned empty tokens: %+v", out)
	}
	if out.User.ID != 1 || out.User.PhoneNumber != DefaultPhoneNumber {
		t.Errorf("user = %+v", out.User)
	}

	status, body := h.do(http.MethodPost, "auth/login", model.LoginInput{PhoneNumber: DefaultPhoneNumber, Password: "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	e := decodeError(t, body)
	if e.StatusCode != 401 || e.ErrorName != "InvalidCredentials" || e.RequestID != "test-request" || e.Path != BasePath+"auth/login" {
		t.Errorf("error envelope = %+v", e)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	h := newHarness(t)
	first := h.login()

	status, body := h.do(http.MethodPost, "auth/refresh-token", model.RefreshTokenInput{RefreshToken: first.RefreshToken})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", status, body)
	}
	second := decodeData[model.AuthTokenOutput](t, body)
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Error("refresh did not rotate tokens")
	}

	// Refresh tokens are single use
	status, _ = h.do(http.MethodPost, "auth/refresh-token", model.RefreshTokenInput{RefreshToken: first.RefreshToken})
	if status != http.StatusUnauthorized {
		t.Errorf("reused refresh status = %d, want 401", status)
	}
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t)

	if status, _ := h.do(http.MethodGet, "users/me/services", nil); status != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", status)
	}

	h.token = "not-a-jwt"
	if status, _ := h.do(http.MethodGet, "users/me/services", nil); status != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", status)
	}

	h.login()
	if status, _ := h.do(http.MethodGet, "users/me/services", nil); status != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", status)
	}

	h.clock.advance(2 * time.Minute)
	if status, _ := h.do(http.MethodGet, "users/me/services", nil); status != http.StatusUnauthorized {
		t.Errorf("expired token status = %d, want 401", status)
	}
}

func TestPaymentRequestLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login()

	created := h.createPayment(DefaultServices[0], 105)
	if created.Status != model.PaymentStatusPending || created.ID == 0 {
		t.Fatalf("created = %+v", created)
	}
	if created.Tax == nil || *created.Tax != 5.25 {
		t.Errorf("tax = %v, want 5.25", created.Tax)
	}
	second := h.createPayment(DefaultServices[1], 50)

	status, body := h.do(http.MethodGet, "payment-requests?offset=0&limit=1", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	page := decodeData[[]model.PaymentRequest](t, body)
	if len(page) != 1 || page[0].ID != second.ID {
		t.Errorf("first page = %+v, want newest request only", page)
	}

	paid := model.PaymentStatusPaid
	name := "Fatima"
	status, body = h.do(http.MethodPatch, "payment-requests/1", model.UpdatePaymentRequestInput{Status: &paid, CustomerName: &name})
	if status != http.StatusOK {
		t.Fatalf("update status = %d: %s", status, body)
	}
	updated := decodeData[model.PaymentRequest](t, body)
	if updated.Status != paid || updated.PaidAt == nil || updated.CustomerName == nil || *updated.CustomerName != name {
		t.Errorf("updated = %+v", updated)
	}

	status, _ = h.do(http.MethodDelete, "payment-requests/1", nil)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	status, body = h.do(http.MethodGet, "payment-requests/1", nil)
	if status != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", status)
	}
	if e := decodeError(t, body); e.ErrorName != "NotFound" {
		t.Errorf("error name = %q", e.ErrorName)
	}
}

func TestPaymentRequestValidation(t *testing.T) {
	h := newHarness(t)
	h.login()

	tests := []struct {
		name  string
		input model.CreatePaymentRequestInput
		field string
	}{
		{"zero amount", model.CreatePaymentRequestInput{Service: DefaultServices[0], Expiry: "2030-01-01T00:00:00Z"}, "amount"},
		{"missing service", model.CreatePaymentRequestInput{Amount: 10, Expiry: "2030-01-01T00:00:00Z"}, "service"},
		{"unknown service", model.CreatePaymentRequestInput{Service: "Plumbing", Amount: 10, Expiry: "2030-01-01T00:00:00Z"}, "service"},
		{"past expiry", model.CreatePaymentRequestInput{Service: DefaultServices[0], Amount: 10, Expiry: "2020-01-01T00:00:00Z"}, "expiry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(http.MethodPost, "payment-requests", tt.input)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			e := decodeError(t, body)
			if _, ok := e.Details[tt.field]; !ok {
				t.Errorf("details %v missing %q", e.Details, tt.field)
			}
		})
	}

	if status, _ := h.do(http.MethodGet, "payment-requests/abc", nil); status != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", status)
	}
	if status, _ := h.do(http.MethodGet, "payment-requests?limit=1000", nil); status != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d, want 400", status)
	}
}

func TestPendingRequestsExpire(t *testing.T) {
	h := newHarness(t)
	h.login()
	created := h.createPayment(DefaultServices[0], 10)

	h.clock.advance(2 * time.Hour)
	h.login() // access token outlived by the clock jump

	_, body := h.do(http.MethodGet, "payment-requests/1", nil)
	got := decodeData[model.PaymentRequest](t, body)
	if got.ID != created.ID || got.Status != model.PaymentStatusExpired {
		t.Errorf("status = %q, want EXPIRED", got.Status)
	}
}

func TestServices(t *testing.T) {
	h := newHarness(t)
	h.login()

	status, body := h.do(http.MethodPost, "users/me/services", model.AddServiceInput{ServiceName: "Sofa / Carpet"})
	if status != http.StatusCreated {
		t.Fatalf("add status = %d: %s", status, body)
	}
	if got := decodeData[[]string](t, body); len(got) != len(DefaultServices)+1 {
		t.Errorf("services after add = %v", got)
	}

	if status, _ := h.do(http.MethodPost, "users/me/services", model.AddServiceInput{ServiceName: "Sofa / Carpet"}); status != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", status)
	}

	status, body = h.do(http.MethodPatch, "users/me/services", model.UpdateServiceInput{OldServiceName: DefaultServices[0], NewServiceName: "Deep Cleaning"})
	if status != http.StatusOK {
		t.Fatalf("rename status = %d: %s", status, body)
	}
	if got := decodeData[[]string](t, body); got[0] != "Deep Cleaning" {
		t.Errorf("services after rename = %v", got)
	}

	if status, _ := h.do(http.MethodPatch, "users/me/services", model.UpdateServiceInput{OldServiceName: "x", NewServiceName: "x"}); status != http.StatusBadRequest {
		t.Errorf("identical rename status = %d, want 400", status)
	}

	status, body = h.do(http.MethodDelete, "users/me/services/Sofa%20%2F%20Carpet", nil)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d: %s", status, body)
	}
	for _, s := range decodeData[[]string](t, body) {
		if s == "Sofa / Carpet" {
			t.Error("service still listed after delete")
		}
	}

	if status, _ := h.do(http.MethodDelete, "users/me/services/Missing", nil); status != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", status)
	}
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	h.login()

	h.createPayment(DefaultServices[0], 100)
	h.createPayment(DefaultServices[0], 300)
	paid := model.PaymentStatusPaid
	h.do(http.MethodPatch, "payment-requests/2", model.UpdatePaymentRequestInput{Status: &paid})

	status, body := h.do(http.MethodGet, "analytics/dashboard?period=LAST_7_DAYS", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	got := decodeData[model.DashboardAnalytics](t, body)

	if got.TotalRevenue != 300 || got.TotalPaymentLinks != 2 || got.SuccessRate != 50 || got.AverageAmount != 200 {
		t.Errorf("figures = revenue %v links %d rate %v avg %v", got.TotalRevenue, got.TotalPaymentLinks, got.SuccessRate, got.AverageAmount)
	}
	if len(got.RevenueData) != 7 {
		t.Errorf("revenue points = %d, want 7", len(got.RevenueData))
	}
	if last := got.RevenueData[len(got.RevenueData)-1]; last.Value != 300 {
		t.Errorf("today's revenue = %v, want 300", last.Value)
	}
	if len(got.StatusDistribution) != 4 || len(got.RecentActivity) != 2 {
		t.Errorf("distribution = %v activity = %v", got.StatusDistribution, got.RecentActivity)
	}

	if status, _ := h.do(http.MethodGet, "analytics/dashboard?period=FOREVER", nil); status != http.StatusBadRequest {
		t.Errorf("invalid period status = %d, want 400", status)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodGet, "nope", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if e := decodeError(t, body); e.StatusCode != 404 {
		t.Errorf("envelope = %+v", e)
	}
}

func TestStartShutdown(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.BaseURL() != "" {
		t.Errorf("BaseURL before start = %q", s.BaseURL())
	}

	errCh, err := s.Start(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Post(s.BaseURL()+"auth/login", "application/json",
		bytes.NewReader([]byte(`{"phoneNumber":"+971500000000","password":"secret1"}`)))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login status = %d", resp.StatusCode)
	}

	// Second listener on the same address fails at startup
	if _, err := (&Server{mux: s.mux}).Start(context.Background(), s.Addr().String()); err == nil {
		t.Error("expected listen error for address in use")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("runtime error: %v", err)
	}
	http.DefaultClient.CloseIdleConnections()
}
