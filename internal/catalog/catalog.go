// Package catalog serves the configured recreational services.
package catalog

import (
	"errors"
	"sort"

	"recpay/internal/models"
)

var ErrUnknownService = errors.New("unknown service")

// Catalog is an immutable, config-backed service listing.
type Catalog struct {
	services []models.Service
	byID     map[string]models.Service
}

func New(services []models.Service) *Catalog {
	c := &Catalog{
		services: make([]models.Service, len(services)),
		byID:     make(map[string]models.Service, len(services)),
	}
	copy(c.services, services)
	for _, svc := range services {
		c.byID[svc.ID] = svc
	}
	return c
}

// List returns every service in configured order.
func (c *Catalog) List() []models.Service {
	out := make([]models.Service, len(c.services))
	copy(out, c.services)
	return out
}

// Get looks up a service by id. Unavailable services still resolve; the
// booking layer decides whether they can be booked.
func (c *Catalog) Get(id string) (models.Service, error) {
	svc, ok := c.byID[id]
	if !ok {
		return models.Service{}, ErrUnknownService
	}
	return svc, nil
}

// Categories returns the distinct service categories, sorted.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, svc := range c.services {
		if svc.Category == "" {
			continue
		}
		if _, ok := seen[svc.Category]; ok {
			continue
		}
		seen[svc.Category] = struct{}{}
		out = append(out, svc.Category)
	}
	sort.Strings(out)
	return out
}

// ByCategory returns the available services in the given category.
func (c *Catalog) ByCategory(category string) []models.Service {
	var out []models.Service
	for _, svc := range c.services {
		if svc.Category == category && svc.Available {
			out = append(out, svc)
		}
	}
	return out
}
