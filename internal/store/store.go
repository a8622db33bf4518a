// Package store holds the in-memory booking log. Bookings are appended once
// and mutated only through Resolve, which performs the single allowed status
// transition. Nothing here survives a restart; that is deliberate.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"recpay/internal/models"
)

var (
	ErrNotFound         = errors.New("booking not found")
	ErrDuplicateBooking = errors.New("booking already exists")
	ErrBookingActive    = errors.New("booking is still pending")
)

type BookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	order    []string // ids in append order
}

func NewBookingStore() *BookingStore {
	return &BookingStore{
		bookings: make(map[string]*models.Booking),
	}
}

// Append adds a new booking. IDs are never reused, so a duplicate is a
// programming error surfaced to the caller.
func (s *BookingStore) Append(b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBooking, b.ID)
	}

	clone := *b
	s.bookings[b.ID] = &clone
	s.order = append(s.order, b.ID)
	return nil
}

// Get returns a copy of the booking.
func (s *BookingStore) Get(id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	clone := *b
	return &clone, nil
}

// List returns all bookings, newest first.
func (s *BookingStore) List() []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Booking, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		clone := *s.bookings[s.order[i]]
		out = append(out, &clone)
	}
	return out
}

// Resolve performs the booking's one status transition. Only status and
// transaction code may change; a Confirmed resolution requires a non-empty
// code and the code is dropped for every other outcome.
func (s *BookingStore) Resolve(id, status, transactionCode string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := models.ValidateTransition(b.Status, status); err != nil {
		return nil, err
	}

	if status == models.StatusConfirmed {
		if transactionCode == "" {
			return nil, fmt.Errorf("confirmed booking %s requires a transaction code", id)
		}
		b.TransactionCode = transactionCode
	} else {
		b.TransactionCode = ""
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	clone := *b
	return &clone, nil
}

// Remove drops a terminal booking from history. Pending bookings cannot be
// removed; the engine still owns them.
func (s *BookingStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !b.Terminal() {
		return fmt.Errorf("%w: %s", ErrBookingActive, id)
	}

	delete(s.bookings, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Summary is the dashboard aggregate: pure folds over the log.
type Summary struct {
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	Confirmed  int             `json:"confirmed"`
	Failed     int             `json:"failed"`
	Cancelled  int             `json:"cancelled"`
	Revenue    int64           `json:"revenue"`
	Categories []CategoryCount `json:"categories"`
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summarize computes status counts, revenue over Confirmed bookings and the
// per-category distribution of confirmed bookings.
func (s *BookingStore) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{Total: len(s.order)}
	categories := make(map[string]int)

	for _, id := range s.order {
		b := s.bookings[id]
		switch b.Status {
		case models.StatusPending:
			summary.Pending++
		case models.StatusConfirmed:
			summary.Confirmed++
			summary.Revenue += b.Amount
			categories[b.Category]++
		case models.StatusFailed:
			summary.Failed++
		case models.StatusCancelled:
			summary.Cancelled++
		}
	}

	for name, count := range categories {
		summary.Categories = append(summary.Categories, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Name < summary.Categories[j].Name
	})

	return summary
}
