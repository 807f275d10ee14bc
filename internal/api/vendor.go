package api

import (
	"context"
	"net/http"

	"github.com/florianilch/taplinks-cli/internal/model"
)

const servicesPath = "users/me/services"

// VendorService manages the services a vendor offers. Every mutation
// returns the updated list.
type VendorService struct {
	client Doer
}

// List returns the offered services.
func (s *VendorService) List(ctx context.Context) ([]string, error) {
	return call[[]string](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodGet, servicesPath, nil, nil)
	})
}

// Add offers a new service.
func (s *VendorService) Add(ctx context.Context, name string) ([]string, error) {
	return call[[]string](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodPost, servicesPath, nil, model.AddServiceInput{ServiceName: name})
	})
}

// Rename renames an offered service.
func (s *VendorService) Rename(ctx context.Context, oldName, newName string) ([]string, error) {
	return call[[]string](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodPatch, servicesPath, nil, model.UpdateServiceInput{
			OldServiceName: oldName,
			NewServiceName: newName,
		})
	})
}

// Delete stops offering a service. Names may contain any character.
func (s *VendorService) Delete(ctx context.Context, name string) ([]string, error) {
	return call[[]string](ctx, func(ctx context.Context) (*http.Response, error) {
		seg, err := pathParam("serviceName", name)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodDelete, servicesPath+"/"+seg, nil, nil)
	})
}
