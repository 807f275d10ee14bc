package sandbox

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/taplinks-cli/internal/model"
)

const maxPageSize = 100

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validBody validates v, writing a 400 with per-field details on failure.
func (s *Server) validBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}

	details := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	s.writeError(w, r, http.StatusBadRequest, "ValidationError", "request validation failed", details)
	return false
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "NotFound", "route not found", nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in model.LoginInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	user, ok := s.store.authenticate(in.PhoneNumber, in.Password)
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, "InvalidCredentials", "invalid phone number or password", nil)
		return
	}
	s.writeTokens(w, r, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in model.RefreshTokenInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	userID, err := s.tokens.redeem(in.RefreshToken)
	if err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "InvalidRefreshToken", err.Error(), nil)
		return
	}
	user, ok := s.store.user(userID)
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, "InvalidRefreshToken", "user no longer exists", nil)
		return
	}
	s.writeTokens(w, r, user)
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.tokens.issue(user)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "", err.Error(), nil)
		return
	}
	s.writeData(w, r, out, http.StatusOK)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	offset, ok := s.intQuery(w, r, "offset", 0, 0, -1)
	if !ok {
		return
	}
	limit, ok := s.intQuery(w, r, "limit", 20, 1, maxPageSize)
	if !ok {
		return
	}
	s.writeData(w, r, s.store.listPayments(offset, limit, s.now()), http.StatusOK)
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var in model.CreatePaymentRequestInput
	if !s.decodeBody(w, r, &in) || !s.validBody(w, r, in) {
		return
	}

	now := s.now()
	expiry, err := time.Parse(time.RFC3339, in.Expiry)
	if err != nil || !expiry.After(now) {
		s.writeError(w, r, http.StatusBadRequest, "ValidationError", "expiry must be a future RFC 3339 time",
			map[string]string{"expiry": "future"})
		return
	}

	p, err := s.store.createPayment(in, expiry, now)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "ValidationError", "service is not offered by this vendor",
			map[string]string{"service": "offered"})
		return
	}
	s.writeData(w, r, p, http.StatusCreated)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := s.store.payment(id, s.now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, p, http.StatusOK)
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var in model.UpdatePaymentRequestInput
	if !s.decodeBody(w, r, &in) || !s.validBody(w, r, in) {
		return
	}

	p, err := s.store.updatePayment(id, in, s.now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, p, http.StatusOK)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := s.store.deletePayment(id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, p, http.StatusOK)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = model.PeriodLast30Days
	}
	days, ok := periodDays[period]
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "ValidationError", "unsupported period",
			map[string]string{"period": "oneof"})
		return
	}

	s.writeData(w, r, dashboard(s.store.allPayments(s.now()), s.now(), days), http.StatusOK)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, s.store.services(), http.StatusOK)
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	var in model.AddServiceInput
	if !s.decodeBody(w, r, &in) || !s.validBody(w, r, in) {
		return
	}
	services, err := s.store.addService(in.ServiceName)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, services, http.StatusCreated)
}

func (s *Server) handleRenameService(w http.ResponseWriter, r *http.Request) {
	var in model.UpdateServiceInput
	if !s.decodeBody(w, r, &in) || !s.validBody(w, r, in) {
		return
	}
	services, err := s.store.renameService(in.OldServiceName, in.NewServiceName)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, services, http.StatusOK)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.deleteService(r.PathValue("name"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, services, http.StatusOK)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNotFound):
		s.writeError(w, r, http.StatusNotFound, "NotFound", "resource not found", nil)
	case errors.Is(err, errConflict):
		s.writeError(w, r, http.StatusConflict, "Conflict", "resource already exists", nil)
	default:
		s.writeError(w, r, http.StatusInternalServerError, "", err.Error(), nil)
	}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "ValidationError", "id must be a positive integer",
			map[string]string{"id": "numeric"})
		return 0, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter within [lo, hi];
// hi < 0 means unbounded.
func (s *Server) intQuery(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		s.writeError(w, r, http.StatusBadRequest, "ValidationError", "invalid "+name,
			map[string]string{name: "range"})
		return 0, false
	}
	return v, true
}
