// Package engine drives a pending booking to exactly one terminal outcome.
// After the payment request is dispatched, three confirmation paths race:
// automatic status polling, manual transaction-code entry and (when enabled)
// a demo bypass. Whichever reaches a terminal transition first wins; every
// other scheduled task is cancelled and its late results are ignored.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"recpay/internal/models"
	"recpay/internal/payhero"

	"github.com/rs/zerolog"
)

// Phase is the engine's user-visible progress state.
type Phase string

const (
	PhaseRequesting  Phase = "Requesting"
	PhaseAwaitingPin Phase = "AwaitingPin"
	PhaseSettled     Phase = "Settled"
	PhaseErrored     Phase = "Errored"
)

var (
	ErrEmptyCode          = errors.New("transaction code is required")
	ErrManualNotAvailable = errors.New("manual verification is not available yet")
	ErrBypassNotAvailable = errors.New("demo bypass is not available")
	ErrNotErrored         = errors.New("retry is only available after a failed attempt")
	ErrFinished           = errors.New("payment confirmation already finished")
)

const (
	msgCancelled     = "Transaction was cancelled."
	msgFailed        = "Transaction failed."
	warnCodeNotFound = "Transaction not found yet. Ensure the code is correct."
	warnVerifyDown   = "Verification service unavailable."
)

// ProviderClient is the slice of the payment provider the engine consumes.
type ProviderClient interface {
	CheckStatus(ctx context.Context, reference, checkoutID string) payhero.StatusResult
	SearchByCode(ctx context.Context, code string) (*payhero.StatusResult, error)
}

// Hooks receive the engine's outcomes. Exactly one of OnConfirm, OnCancel or
// OnFail fires per engine, and none fire after Close.
type Hooks struct {
	OnConfirm func(transactionCode string)
	OnCancel  func()
	OnFail    func()
	OnPhase   func(Phase)
}

// Config tunes the engine's windows and thresholds.
type Config struct {
	DeadTime         time.Duration
	PollInterval     time.Duration
	ManualEntryAfter int
	BypassAfter      int
	WarningWindow    time.Duration
	MaxAttempts      int // 0 disables the attempt ceiling
	AllowDemoBypass  bool
}

func (c *Config) applyDefaults() {
	if c.DeadTime == 0 {
		c.DeadTime = models.DefaultDeadTimeSeconds * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = models.DefaultPollIntervalSeconds * time.Second
	}
	if c.ManualEntryAfter == 0 {
		c.ManualEntryAfter = models.DefaultManualEntryAfter
	}
	if c.BypassAfter == 0 {
		c.BypassAfter = models.DefaultBypassAfter
	}
	if c.WarningWindow == 0 {
		c.WarningWindow = models.DefaultWarningWindowSeconds * time.Second
	}
}

// Snapshot is the engine state exposed to the presentation layer.
type Snapshot struct {
	Phase                Phase  `json:"phase"`
	Attempts             int    `json:"attempts"`
	Error                string `json:"error,omitempty"`
	Warning              string `json:"warning,omitempty"`
	ManualEntryAvailable bool   `json:"manual_entry_available"`
	BypassAvailable      bool   `json:"bypass_available"`
}

// Engine owns one booking's confirmation timeline. All scheduled work is tied
// to the engine's context and stops channel, so a terminal transition or a
// Close tears everything down deterministically.
type Engine struct {
	reference  string
	checkoutID string
	client     ProviderClient
	clock      Clock
	cfg        Config
	hooks      Hooks
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	phase      Phase
	attempts   int
	errMsg     string
	warning    string
	warningGen int
	finished   bool
	closed     bool
	stopPoll   chan struct{}
	stopped    bool

	done chan struct{}
}

func New(booking *models.Booking, client ProviderClient, cfg Config, hooks Hooks, clock Clock, logger *zerolog.Logger) *Engine {
	cfg.applyDefaults()
	if clock == nil {
		clock = RealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		reference:  booking.PaymentReference(),
		checkoutID: booking.CheckoutID,
		client:     client,
		clock:      clock,
		cfg:        cfg,
		hooks:      hooks,
		logger:     logger.With().Str("component", "engine").Str("reference", booking.ID).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		phase:      PhaseRequesting,
		stopPoll:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the confirmation timeline: the dead-time window, then the
// polling loop.
func (e *Engine) Start() {
	go e.run()
}

// Done is closed when the polling loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) run() {
	defer close(e.done)

	// Dead time: the provider has no status row yet, polling would be noise.
	if !e.wait(e.cfg.DeadTime) {
		return
	}
	e.enterAwaitingPin()

	for {
		if !e.wait(e.cfg.PollInterval) {
			return
		}
		if e.poll() {
			return
		}
	}
}

func (e *Engine) wait(d time.Duration) bool {
	select {
	case <-e.clock.After(d):
		return true
	case <-e.stopPoll:
		return false
	}
}

func (e *Engine) enterAwaitingPin() {
	e.mu.Lock()
	if e.finished || e.phase != PhaseRequesting {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseAwaitingPin
	onPhase := e.hooks.OnPhase
	e.mu.Unlock()

	e.logger.Debug().Msg("awaiting PIN confirmation")
	if onPhase != nil {
		onPhase(PhaseAwaitingPin)
	}
}

// poll runs one status query. Returns true when the loop should stop.
func (e *Engine) poll() bool {
	e.mu.Lock()
	if e.finished || e.phase != PhaseAwaitingPin {
		e.mu.Unlock()
		return true
	}
	e.attempts++
	attempt := e.attempts
	e.mu.Unlock()

	res := e.client.CheckStatus(e.ctx, e.reference, e.checkoutID)
	e.logger.Debug().Int("attempt", attempt).Str("status", res.Status).Msg("poll result")

	switch classifyStatus(res.Status) {
	case statusSuccess:
		e.settle(res.TransactionCode)
		return true
	case statusFailure, statusCancelled:
		e.toErrored(res.Status)
		return true
	default:
		if e.cfg.MaxAttempts > 0 && attempt >= e.cfg.MaxAttempts {
			e.toErrored("failed")
			return true
		}
		return false
	}
}

// VerifyCode runs the manual confirmation path against the user-supplied
// transaction code. It never pauses automatic polling: a miss leaves the
// engine in AwaitingPin with a transient warning.
func (e *Engine) VerifyCode(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ErrEmptyCode
	}

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if e.phase != PhaseAwaitingPin || e.attempts <= e.cfg.ManualEntryAfter {
		e.mu.Unlock()
		return ErrManualNotAvailable
	}
	e.mu.Unlock()

	res, err := e.client.SearchByCode(ctx, code)
	if err != nil {
		e.setWarning(warnVerifyDown)
		return nil
	}
	if res == nil {
		e.setWarning(warnCodeNotFound)
		return nil
	}

	e.settle(firstNonEmpty(res.TransactionCode, code))
	return nil
}

// SkipVerification force-settles with a synthetic, clearly tagged code. Only
// available when the config flag allows it and enough attempts have passed.
func (e *Engine) SkipVerification() error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if !e.cfg.AllowDemoBypass || e.phase != PhaseAwaitingPin || e.attempts <= e.cfg.BypassAfter {
		e.mu.Unlock()
		return ErrBypassNotAvailable
	}
	e.mu.Unlock()

	code := models.DemoCodePrefix + strconv.FormatInt(e.clock.Now().UnixMilli(), 10)
	e.logger.Warn().Str("code", code).Msg("verification skipped via demo bypass")
	e.settle(code)
	return nil
}

// Cancel abandons the attempt. Valid from any non-settled state, including
// the Errored resolution screen; the booking resolves as Cancelled.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	e.finished = true
	e.stopLocked()
	hook := e.hooks.OnCancel
	e.mu.Unlock()

	e.logger.Info().Msg("payment attempt cancelled by user")
	if hook != nil {
		hook()
	}
	return nil
}

// Fail is the retry path out of Errored: the booking resolves as Failed and
// the surrounding flow creates a fresh booking with a fresh reference.
func (e *Engine) Fail() error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if e.phase != PhaseErrored {
		e.mu.Unlock()
		return ErrNotErrored
	}
	e.finished = true
	e.stopLocked()
	hook := e.hooks.OnFail
	e.mu.Unlock()

	e.logger.Info().Msg("payment attempt marked failed for retry")
	if hook != nil {
		hook()
	}
	return nil
}

// Close tears the engine down without resolving the booking: all scheduled
// work is cancelled and no callback fires afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.finished = true
	e.stopLocked()
	e.mu.Unlock()
}

// Snapshot returns the current presentation state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.phase == PhaseAwaitingPin && !e.finished
	return Snapshot{
		Phase:                e.phase,
		Attempts:             e.attempts,
		Error:                e.errMsg,
		Warning:              e.warning,
		ManualEntryAvailable: active && e.attempts > e.cfg.ManualEntryAfter,
		BypassAvailable:      active && e.cfg.AllowDemoBypass && e.attempts > e.cfg.BypassAfter,
	}
}

// settle records the success outcome. First terminal transition wins.
func (e *Engine) settle(code string) {
	if code == "" {
		code = e.reference
	}

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.phase = PhaseSettled
	e.warning = ""
	e.stopLocked()
	onPhase := e.hooks.OnPhase
	hook := e.hooks.OnConfirm
	e.mu.Unlock()

	e.logger.Info().Str("transaction_code", code).Msg("payment settled")
	if onPhase != nil {
		onPhase(PhaseSettled)
	}
	if hook != nil {
		hook(code)
	}
}

// Abort moves straight to Errored with the given message. Used when the
// payment request itself could not be dispatched, so there is nothing to poll.
func (e *Engine) Abort(message string) {
	if message == "" {
		message = msgFailed
	}
	e.erroredWith(message)
}

func (e *Engine) toErrored(providerStatus string) {
	msg := msgFailed
	if strings.Contains(strings.ToLower(providerStatus), "cancel") {
		msg = msgCancelled
	}
	e.logger.Info().Str("provider_status", providerStatus).Msg("payment rejected by provider")
	e.erroredWith(msg)
}

// erroredWith stops polling and waits for the user to cancel or retry.
func (e *Engine) erroredWith(msg string) {
	e.mu.Lock()
	if e.finished || e.phase == PhaseErrored {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseErrored
	e.errMsg = msg
	e.warning = ""
	e.stopLocked()
	onPhase := e.hooks.OnPhase
	e.mu.Unlock()

	e.logger.Info().Str("message", msg).Msg("payment errored")
	if onPhase != nil {
		onPhase(PhaseErrored)
	}
}

// stopLocked cancels polling and in-flight requests. Callers hold e.mu.
func (e *Engine) stopLocked() {
	if !e.stopped {
		e.stopped = true
		close(e.stopPoll)
	}
	e.cancel()
}

// setWarning shows a transient manual-entry message that auto-clears after
// the warning window unless a newer warning replaced it.
func (e *Engine) setWarning(msg string) {
	e.mu.Lock()
	if e.finished || e.phase != PhaseAwaitingPin {
		e.mu.Unlock()
		return
	}
	e.warning = msg
	e.warningGen++
	gen := e.warningGen
	e.mu.Unlock()

	go func() {
		select {
		case <-e.clock.After(e.cfg.WarningWindow):
			e.mu.Lock()
			if e.warningGen == gen {
				e.warning = ""
			}
			e.mu.Unlock()
		case <-e.ctx.Done():
		}
	}()
}

type statusClass int

const (
	statusPending statusClass = iota
	statusSuccess
	statusFailure
	statusCancelled
)

// classifyStatus folds the provider's status vocabulary into four classes.
// Anything unrecognized, including transport noise, reads as pending.
func classifyStatus(status string) statusClass {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "confirmed", "complete", "successful":
		return statusSuccess
	case "failed", "rejected":
		return statusFailure
	case "cancelled", "canceled":
		return statusCancelled
	default:
		return statusPending
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
