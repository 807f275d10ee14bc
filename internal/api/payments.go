package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// Default page of payment requests.
const (
	DefaultOffset = 0
	DefaultLimit  = 20
)

// PaymentRequestService manages payment links.
type PaymentRequestService struct {
	client Doer
}

// List returns a page of payment requests, newest first.
func (s *PaymentRequestService) List(ctx context.Context, offset, limit int) ([]model.PaymentRequest, error) {
	return call[[]model.PaymentRequest](ctx, func(ctx context.Context) (*http.Response, error) {
		query, err := queryParams("offset", offset, "limit", limit)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodGet, "payment-requests", query, nil)
	})
}

// Create creates a payment request.
func (s *PaymentRequestService) Create(ctx context.Context, input model.CreatePaymentRequestInput) (model.PaymentRequest, error) {
	return call[model.PaymentRequest](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodPost, "payment-requests", nil, input)
	})
}

// Get returns a single payment request.
func (s *PaymentRequestService) Get(ctx context.Context, id int) (model.PaymentRequest, error) {
	return call[model.PaymentRequest](ctx, func(ctx context.Context) (*http.Response, error) {
		path, err := paymentRequestPath(id)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodGet, path, nil, nil)
	})
}

// Update changes the non-nil fields of input on a payment request.
func (s *PaymentRequestService) Update(ctx context.Context, id int, input model.UpdatePaymentRequestInput) (model.PaymentRequest, error) {
	return call[model.PaymentRequest](ctx, func(ctx context.Context) (*http.Response, error) {
		path, err := paymentRequestPath(id)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodPatch, path, nil, input)
	})
}

// Delete removes a payment request.
func (s *PaymentRequestService) Delete(ctx context.Context, id int) error {
	_, err := call[json.RawMessage](ctx, func(ctx context.Context) (*http.Response, error) {
		path, err := paymentRequestPath(id)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodDelete, path, nil, nil)
	})
	return err
}

func paymentRequestPath(id int) (string, error) {
	seg, err := pathParam("id", id)
	if err != nil {
		return "", err
	}
	return "payment-requests/" + seg, nil
}
