// Package api exposes the booking and payment flow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"recpay/internal/booking"
	"recpay/internal/catalog"
	"recpay/internal/config"
	"recpay/internal/engine"
	"recpay/internal/export"
	"recpay/internal/metrics"
	"recpay/internal/models"
	"recpay/internal/recommend"
	"recpay/internal/store"

	"github.com/rs/zerolog"
)

// HTTPServer serves the public booking API.
type HTTPServer struct {
	cfg         config.APIConfig
	flow        *booking.Flow
	catalog     *catalog.Catalog
	recommender *recommend.Recommender
	server      *http.Server
	auth        *HTTPAuth
	exportDir   string
	log         zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, exports config.ExportConfig, flow *booking.Flow, cat *catalog.Catalog, rec *recommend.Recommender, logger *zerolog.Logger) *HTTPServer {
	exportDir := exports.Path
	if exportDir == "" {
		exportDir = "exports"
	}
	srv := &HTTPServer{
		cfg:         cfg,
		flow:        flow,
		catalog:     cat,
		recommender: rec,
		exportDir:   exportDir,
		log:         logger.With().Str("component", "http").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/services", srv.handleServices)
	mux.HandleFunc("POST /api/v1/recommend", srv.handleRecommend)

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", srv.handleDeleteBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/verify", srv.handleVerify)
	mux.HandleFunc("POST /api/v1/bookings/{id}/skip", srv.handleSkip)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/v1/bookings/{id}/retry", srv.handleRetry)
	mux.HandleFunc("GET /api/v1/bookings/{id}/receipt", srv.handleReceipt)

	mux.HandleFunc("GET /api/v1/dashboard", srv.handleDashboard)
	mux.HandleFunc("GET /api/v1/dashboard/export", srv.handleDashboardExport)
	mux.HandleFunc("POST /api/v1/dashboard/export", srv.handleDashboardExportSave)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("services")
	writeJSON(w, http.StatusOK, map[string]any{
		"services":   s.catalog.List(),
		"categories": s.catalog.Categories(),
	})
}

func (s *HTTPServer) handleRecommend(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("recommend")

	var body struct {
		Mood string `json:"mood"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.recommender.Recommend(r.Context(), body.Mood)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.flow.Create(r.Context(), req)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.bookingResponse(b.ID))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_bookings")
	writeJSON(w, http.StatusOK, map[string]any{"bookings": s.flow.List()})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	b, snap, err := s.flow.Get(r.PathValue("id"))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingPayload(b, snap))
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_booking")

	if err := s.flow.Remove(r.PathValue("id")); err != nil {
		s.writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("verify_payment")

	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	if err := s.flow.VerifyCode(r.Context(), id, body.Code); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bookingResponse(id))
}

func (s *HTTPServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("skip_verification")

	id := r.PathValue("id")
	if err := s.flow.Skip(id); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bookingResponse(id))
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_payment")

	id := r.PathValue("id")
	if err := s.flow.Cancel(id); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bookingResponse(id))
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("retry_payment")

	fresh, err := s.flow.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.bookingResponse(fresh.ID))
}

func (s *HTTPServer) handleReceipt(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("receipt")

	b, _, err := s.flow.Get(r.PathValue("id"))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	if b.Status != models.StatusConfirmed {
		writeError(w, http.StatusConflict, "booking is not confirmed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receipt": map[string]any{
			"reference":        b.ID,
			"service":          b.ServiceName,
			"category":         b.Category,
			"amount":           b.Amount,
			"date":             b.Date,
			"time":             b.Time,
			"phone":            b.UserPhone,
			"transaction_code": b.TransactionCode,
			"issued_at":        time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard")
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  s.flow.Summary(),
		"bookings": s.flow.List(),
	})
}

func (s *HTTPServer) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard_export")

	f, err := export.Workbook(s.flow.List(), s.flow.Summary())
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("bookings_export_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Msg("dashboard export write failed")
	}
}

// handleDashboardExportSave archives a workbook under the exports directory
// instead of streaming it to the caller.
func (s *HTTPServer) handleDashboardExportSave(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard_export_save")

	f, err := export.Workbook(s.flow.List(), s.flow.Summary())
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	defer f.Close()

	path, err := export.Save(f, s.exportDir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", s.exportDir).Msg("dashboard export save failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	s.log.Info().Str("path", path).Msg("dashboard export archived")
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// bookingResponse re-reads a booking so responses always carry the freshest
// status and payment snapshot.
func (s *HTTPServer) bookingResponse(id string) map[string]any {
	b, snap, err := s.flow.Get(id)
	if err != nil {
		return map[string]any{"booking": nil}
	}
	return bookingPayload(b, snap)
}

func bookingPayload(b *models.Booking, snap *engine.Snapshot) map[string]any {
	payload := map[string]any{"booking": b}
	if snap != nil {
		payload["payment"] = snap
	}
	return payload
}

func (s *HTTPServer) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownService), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrPhoneRequired),
		errors.Is(err, booking.ErrDateTimeRequired),
		errors.Is(err, engine.ErrEmptyCode),
		errors.Is(err, recommend.ErrEmptyMood):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrServiceUnavailable),
		errors.Is(err, booking.ErrNoActivePayment),
		errors.Is(err, engine.ErrManualNotAvailable),
		errors.Is(err, engine.ErrBypassNotAvailable),
		errors.Is(err, engine.ErrNotErrored),
		errors.Is(err, engine.ErrFinished),
		errors.Is(err, store.ErrBookingActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
