// Package booking orchestrates the booking lifecycle: catalog lookup, push
// payment initiation, the confirmation engine and the terminal resolution of
// each booking in the store.
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"recpay/internal/catalog"
	"recpay/internal/config"
	"recpay/internal/engine"
	"recpay/internal/events"
	"recpay/internal/metrics"
	"recpay/internal/models"
	"recpay/internal/payhero"
	"recpay/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrPhoneRequired      = errors.New("phone number is required")
	ErrDateTimeRequired   = errors.New("booking date and time are required")
	ErrServiceUnavailable = errors.New("service is not available for booking")
	ErrNoActivePayment    = errors.New("no active payment for this booking")
	ErrClosed             = errors.New("booking flow is shut down")
)

// PaymentClient is the payment provider surface the flow needs.
type PaymentClient interface {
	Initiate(ctx context.Context, amount int64, phone, reference string) payhero.InitiateResult
	CheckStatus(ctx context.Context, reference, checkoutID string) payhero.StatusResult
	SearchByCode(ctx context.Context, code string) (*payhero.StatusResult, error)
	NormalizePhone(raw string) string
}

// EngineConfig converts the YAML payment section into engine settings.
func EngineConfig(cfg config.PaymentConfig) engine.Config {
	return engine.Config{
		DeadTime:         time.Duration(cfg.DeadTime) * time.Second,
		PollInterval:     time.Duration(cfg.PollInterval) * time.Second,
		ManualEntryAfter: cfg.ManualEntryAfter,
		BypassAfter:      cfg.BypassAfter,
		WarningWindow:    time.Duration(cfg.WarningWindow) * time.Second,
		MaxAttempts:      cfg.MaxAttempts,
		AllowDemoBypass:  cfg.AllowDemoBypass,
	}
}

// CreateRequest is the input for a new booking.
type CreateRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Phone     string `json:"phone"`
}

type Flow struct {
	store   *store.BookingStore
	catalog *catalog.Catalog
	client  PaymentClient
	bus     *events.EventBus
	engCfg  engine.Config
	clock   engine.Clock
	logger  zerolog.Logger

	mu      sync.Mutex
	engines map[string]*engine.Engine
	closed  bool
}

func New(st *store.BookingStore, cat *catalog.Catalog, client PaymentClient, bus *events.EventBus, engCfg engine.Config, clock engine.Clock, logger *zerolog.Logger) *Flow {
	if clock == nil {
		clock = engine.RealClock()
	}
	return &Flow{
		store:   st,
		catalog: cat,
		client:  instrumented{client},
		bus:     bus,
		engCfg:  engCfg,
		clock:   clock,
		logger:  logger.With().Str("component", "booking").Logger(),
		engines: make(map[string]*engine.Engine),
	}
}

// newReference mints a payment reference like REC-4F9A2C81D.
func newReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return models.ReferencePrefix + raw[:9]
}

// Create stores a pending booking, fires the push payment and starts its
// confirmation engine. An initiation failure still creates the booking; its
// engine starts on the error screen so the user can retry or cancel.
func (f *Flow) Create(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return nil, ErrPhoneRequired
	}
	if strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" {
		return nil, ErrDateTimeRequired
	}

	svc, err := f.catalog.Get(req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Available {
		return nil, ErrServiceUnavailable
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	f.mu.Unlock()

	// The booking keeps the canonical payer number, not the raw input.
	phone := f.client.NormalizePhone(req.Phone)

	now := f.clock.Now()
	b := &models.Booking{
		ID:          newReference(),
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Category:    svc.Category,
		Amount:      svc.Price,
		Date:        req.Date,
		Time:        req.Time,
		UserPhone:   phone,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res := f.client.Initiate(ctx, b.Amount, phone, b.ID)
	b.CheckoutID = res.CheckoutID

	if err := f.store.Append(b); err != nil {
		return nil, err
	}

	outcome := "accepted"
	if !res.Success {
		outcome = "rejected"
	}
	metrics.IncPaymentInitiated(outcome)
	_ = f.bus.PublishJSON(events.EventPaymentInitiated, eventPayload(b))

	eng := engine.New(b, f.client, f.engCfg, f.hooks(b.ID), f.clock, &f.logger)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		eng.Close()
		return nil, ErrClosed
	}
	f.engines[b.ID] = eng
	f.mu.Unlock()

	eng.Start()
	if !res.Success {
		f.logger.Warn().Str("booking_id", b.ID).Str("message", res.Message).Msg("payment initiation failed")
		eng.Abort(res.Message)
	}

	return b, nil
}

func (f *Flow) hooks(id string) engine.Hooks {
	return engine.Hooks{
		OnConfirm: func(code string) {
			f.resolve(id, models.StatusConfirmed, code, events.EventBookingConfirmed)
		},
		OnCancel: func() {
			f.resolve(id, models.StatusCancelled, "", events.EventBookingCancelled)
		},
		OnFail: func() {
			f.resolve(id, models.StatusFailed, "", events.EventBookingFailed)
		},
	}
}

func (f *Flow) resolve(id, status, code, eventType string) {
	b, err := f.store.Resolve(id, status, code)
	if err != nil {
		f.logger.Error().Err(err).Str("booking_id", id).Str("status", status).Msg("booking resolution failed")
		return
	}

	f.mu.Lock()
	delete(f.engines, id)
	f.mu.Unlock()

	metrics.IncBookingResolved(status)
	_ = f.bus.PublishJSON(eventType, eventPayload(b))
	f.logger.Info().Str("booking_id", id).Str("status", status).Msg("booking resolved")
}

func eventPayload(b *models.Booking) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:       b.ID,
		ServiceID:       b.ServiceID,
		ServiceName:     b.ServiceName,
		Category:        b.Category,
		Amount:          b.Amount,
		Status:          b.Status,
		TransactionCode: b.TransactionCode,
	}
}

// Get returns a booking with its live confirmation snapshot. The snapshot is
// nil once the payment attempt has been resolved or torn down.
func (f *Flow) Get(id string) (*models.Booking, *engine.Snapshot, error) {
	b, err := f.store.Get(id)
	if err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	eng := f.engines[id]
	f.mu.Unlock()

	if eng == nil {
		return b, nil, nil
	}
	snap := eng.Snapshot()
	return b, &snap, nil
}

// List returns all bookings, newest first.
func (f *Flow) List() []*models.Booking {
	return f.store.List()
}

// Summary folds the store into dashboard numbers.
func (f *Flow) Summary() store.Summary {
	return f.store.Summarize()
}

func (f *Flow) activeEngine(id string) (*engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eng, ok := f.engines[id]
	if !ok {
		return nil, ErrNoActivePayment
	}
	return eng, nil
}

// VerifyCode runs manual confirmation against a user-supplied code.
func (f *Flow) VerifyCode(ctx context.Context, id, code string) error {
	eng, err := f.activeEngine(id)
	if err != nil {
		return err
	}
	return eng.VerifyCode(ctx, code)
}

// Skip settles the active payment through the demo bypass.
func (f *Flow) Skip(id string) error {
	eng, err := f.activeEngine(id)
	if err != nil {
		return err
	}
	return eng.SkipVerification()
}

// Cancel abandons the active payment; the booking resolves as Cancelled.
func (f *Flow) Cancel(id string) error {
	eng, err := f.activeEngine(id)
	if err != nil {
		return err
	}
	return eng.Cancel()
}

// Retry resolves an errored attempt as Failed and starts a fresh booking for
// the same service, date and phone under a new payment reference.
func (f *Flow) Retry(ctx context.Context, id string) (*models.Booking, error) {
	old, err := f.store.Get(id)
	if err != nil {
		return nil, err
	}

	eng, err := f.activeEngine(id)
	if err != nil {
		return nil, err
	}
	if err := eng.Fail(); err != nil {
		return nil, err
	}

	return f.Create(ctx, CreateRequest{
		ServiceID: old.ServiceID,
		Date:      old.Date,
		Time:      old.Time,
		Phone:     old.UserPhone,
	})
}

// Remove deletes a resolved booking from the ledger.
func (f *Flow) Remove(id string) error {
	b, err := f.store.Get(id)
	if err != nil {
		return err
	}
	if err := f.store.Remove(id); err != nil {
		return err
	}
	_ = f.bus.PublishJSON(events.EventBookingDeleted, eventPayload(b))
	return nil
}

// Close tears down every active engine without resolving bookings.
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	engines := make([]*engine.Engine, 0, len(f.engines))
	for _, eng := range f.engines {
		engines = append(engines, eng)
	}
	f.engines = make(map[string]*engine.Engine)
	f.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}

// instrumented counts provider polls without the engine knowing about
// metrics.
type instrumented struct {
	PaymentClient
}

func (c instrumented) CheckStatus(ctx context.Context, reference, checkoutID string) payhero.StatusResult {
	metrics.IncPaymentPoll()
	return c.PaymentClient.CheckStatus(ctx, reference, checkoutID)
}
