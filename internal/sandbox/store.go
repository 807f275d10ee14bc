package sandbox

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// Fees applied to new payment requests.
const (
	taxRate            = 0.05
	platformChargeRate = 0.02
)

var (
	errNotFound    = errors.New("not found")
	errConflict    = errors.New("already exists")
	errUnknownItem = errors.New("unknown service")
)

// vendor is the single sandbox account.
type vendor struct {
	user     model.User
	password string
	services []string
}

// store holds all sandbox data in memory.
type store struct {
	mu       sync.Mutex
	vendor   vendor
	payments map[int]*model.PaymentRequest
	nextID   int
}

func newStore(phone, password string, services []string) *store {
	return &store{
		vendor: vendor{
			user: model.User{
				ID:          1,
				PhoneNumber: phone,
				Roles:       []string{"VENDOR"},
			},
			password: password,
			services: slices.Clone(services),
		},
		payments: make(map[int]*model.PaymentRequest),
		nextID:   1,
	}
}

// authenticate returns the vendor matching phone and password.
func (s *store) authenticate(phone, password string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phone != s.vendor.user.PhoneNumber || password != s.vendor.password {
		return model.User{}, false
	}
	return s.vendor.user, true
}

func (s *store) user(id int) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.vendor.user.ID {
		return model.User{}, false
	}
	return s.vendor.user, true
}

func (s *store) services() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.vendor.services)
}

func (s *store) addService(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.vendor.services, name) {
		return nil, errConflict
	}
	s.vendor.services = append(s.vendor.services, name)
	return slices.Clone(s.vendor.services), nil
}

func (s *store) renameService(oldName, newName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.vendor.services, oldName)
	if i < 0 {
		return nil, errNotFound
	}
	if slices.Contains(s.vendor.services, newName) {
		return nil, errConflict
	}
	s.vendor.services[i] = newName
	return slices.Clone(s.vendor.services), nil
}

func (s *store) deleteService(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.vendor.services, name)
	if i < 0 {
		return nil, errNotFound
	}
	s.vendor.services = slices.Delete(s.vendor.services, i, i+1)
	return slices.Clone(s.vendor.services), nil
}

// createPayment stores a new pending payment request.
func (s *store) createPayment(in model.CreatePaymentRequestInput, expiry, now time.Time) (model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.vendor.services, in.Service) {
		return model.PaymentRequest{}, errUnknownItem
	}

	id := s.nextID
	s.nextID++

	tax := round2(in.Amount * taxRate)
	if in.TaxIncluded {
		tax = round2(in.Amount - in.Amount/(1+taxRate))
	}
	booking := fmt.Sprintf("TL-%06d", id)
	stamp := now.UTC().Format(time.RFC3339)

	p := &model.PaymentRequest{
		ID:            id,
		Service:       in.Service,
		Status:        model.PaymentStatusPending,
		Amount:        in.Amount,
		Tax:           &tax,
		TaxIncluded:   in.TaxIncluded,
		BookingNumber: &booking,
		Expiry:        expiry.UTC().Format(time.RFC3339),
		CreatedAt:     stamp,
		UpdatedAt:     stamp,
		User:          model.PaymentRequestUser{PlatformCharge: round2(in.Amount * platformChargeRate)},
	}
	s.payments[id] = p
	return *p, nil
}

// listPayments returns a page of payment requests, newest first.
func (s *store) listPayments(offset, limit int, now time.Time) []model.PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.snapshot(now)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return []model.PaymentRequest{}
	}
	end := min(offset+limit, len(all))
	return all[offset:end]
}

func (s *store) payment(id int, now time.Time) (model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return model.PaymentRequest{}, errNotFound
	}
	expire(p, now)
	return *p, nil
}

// updatePayment applies the non-nil fields of in.
func (s *store) updatePayment(id int, in model.UpdatePaymentRequestInput, now time.Time) (model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return model.PaymentRequest{}, errNotFound
	}

	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.CustomerName != nil {
		p.CustomerName = in.CustomerName
	}
	if in.CustomerPhone != nil {
		p.CustomerPhone = in.CustomerPhone
	}
	if in.PaidAt != nil {
		p.PaidAt = in.PaidAt
	}
	if p.Status == model.PaymentStatusPaid && p.PaidAt == nil {
		paidAt := now.UTC().Format(time.RFC3339)
		p.PaidAt = &paidAt
	}
	p.UpdatedAt = now.UTC().Format(time.RFC3339)
	return *p, nil
}

func (s *store) deletePayment(id int) (model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return model.PaymentRequest{}, errNotFound
	}
	delete(s.payments, id)
	return *p, nil
}

// allPayments returns copies of all payment requests. Pending requests past
// their expiry are marked expired first.
func (s *store) allPayments(now time.Time) []model.PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(now)
}

func (s *store) snapshot(now time.Time) []model.PaymentRequest {
	out := make([]model.PaymentRequest, 0, len(s.payments))
	for _, p := range s.payments {
		expire(p, now)
		out = append(out, *p)
	}
	return out
}

func expire(p *model.PaymentRequest, now time.Time) {
	if p.Status != model.PaymentStatusPending {
		return
	}
	expiry, err := time.Parse(time.RFC3339, p.Expiry)
	if err == nil && !now.Before(expiry) {
		p.Status = model.PaymentStatusExpired
		p.UpdatedAt = now.UTC().Format(time.RFC3339)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
