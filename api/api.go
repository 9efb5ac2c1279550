// Package api exposes the Tenure engine over HTTP.
//
// Mutating routes identify the acting account by the X-Caller-Address
// header. Authenticating that header is the job of whatever sits in front
// of this handler.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/payment"
)

// CallerHeader carries the hex address of the account making the request.
const CallerHeader = "X-Caller-Address"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the Tenure HTTP API.
type Handler struct {
	engine   *tenure.Engine
	logger   *zap.Logger
	validate *validator.Validate
	metrics  *Metrics
	now      func() time.Time
	router   chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics records per-route request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock sets the clock used for the active/renewable flags in
// subscription responses.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New returns a handler over engine.
func New(engine *tenure.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		logger:   zap.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.buildRouter()
	return h
}

// Routes returns the router, for mounting under a prefix.
func (h *Handler) Routes() chi.Router { return h.router }

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.middleware)
	}

	r.Get("/healthz", h.health)

	r.Get("/assets/{id}/subscription", h.subscription)
	r.Get("/assets/{id}/quote", h.quote)
	r.Get("/assets/{id}/events", h.assetEvents)
	r.Get("/events", h.events)
	r.Get("/balance", h.balance)
	r.Get("/receipts/{account}", h.receipts)

	r.Group(func(pr chi.Router) {
		pr.Use(requireCaller)

		pr.Post("/vouchers/redeem", h.redeem)
		pr.Post("/assets/{id}/renew", h.renew)
		pr.Post("/assets/{id}/cancel", h.cancel)
		pr.Delete("/assets/{id}", h.destroy)
		pr.Post("/pause", h.pause)
		pr.Post("/unpause", h.unpause)
	})

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if !h.decode(w, r, &req) {
		return
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		h.fail(w, r, tenure.ErrMalformedSignature)
		return
	}

	// The payer is the caller; a body payer is only accepted when it agrees.
	payer := callerFrom(r)
	if req.Payer != "" && common.HexToAddress(req.Payer) != payer {
		h.fail(w, r, tenure.ValidationError{Field: "payer", Message: "must match " + CallerHeader})
		return
	}

	id, err := h.engine.Issue(r.Context(), tenure.IssueRequest{
		Voucher:   req.Voucher.voucher(),
		Signature: sig,
		Payer:     payer,
		Payment:   req.Payment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"asset_id": uint64(id)})
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	var req RenewRequest
	if !h.decode(w, r, &req) {
		return
	}

	expires, err := h.engine.Renew(r.Context(), tenure.RenewRequest{
		AssetID:  id,
		Caller:   callerFrom(r),
		Duration: time.Duration(req.DurationSeconds) * time.Second,
		Payment:  req.Payment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"asset_id":   int64(id),
		"expires_at": expires.Unix(),
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Cancel(r.Context(), id, callerFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Destroy(r.Context(), id, callerFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(r.Context(), callerFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unpause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Unpause(r.Context(), callerFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Store().Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	rec, err := h.engine.Subscription(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(rec, h.now()))
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	secs, err := strconv.ParseInt(r.URL.Query().Get("duration_seconds"), 10, 64)
	if err != nil || secs < 0 || secs > 9223372036 {
		h.fail(w, r, tenure.ValidationError{Field: "duration_seconds", Message: "must be a whole number of seconds"})
		return
	}

	fee, err := h.engine.Quote(r.Context(), id, time.Duration(secs)*time.Second)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset_id": uint64(id), "fee": fee})
}

func (h *Handler) assetEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	h.listEvents(w, r, id)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, 0)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request, id asset.ID) {
	after, limit, ok := h.paging(w, r, "after")
	if !ok {
		return
	}
	events, err := h.engine.Events(r.Context(), event.ListOpts{AssetID: id, AfterSeq: after, Limit: limit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponses(events))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.engine.Balance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": h.engine.Authority().Hex(),
		"balance": bal,
	})
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if !common.IsHexAddress(account) {
		h.fail(w, r, tenure.ValidationError{Field: "account", Message: "must be a hex address"})
		return
	}
	offset, limit, ok := h.paging(w, r, "offset")
	if !ok {
		return
	}
	list, err := h.engine.Receipts(r.Context(), common.HexToAddress(account), payment.ListOpts{
		Limit:  limit,
		Offset: int(offset),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.fail(w, r, tenure.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			h.fail(w, r, tenure.ValidationError{Field: f.Namespace(), Message: "failed " + f.Tag() + " check"})
			return false
		}
		h.fail(w, r, tenure.ValidationError{Field: "body", Message: err.Error()})
		return false
	}
	return true
}

func (h *Handler) assetID(w http.ResponseWriter, r *http.Request) (asset.ID, bool) {
	id, err := asset.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return 0, false
	}
	return id, true
}

// paging reads a cursor parameter and "limit" from the query string.
func (h *Handler) paging(w http.ResponseWriter, r *http.Request, cursor string) (int64, int, bool) {
	q := r.URL.Query()

	var after int64
	if s := q.Get(cursor); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			h.fail(w, r, tenure.ValidationError{Field: cursor, Message: "must be a non-negative integer"})
			return 0, 0, false
		}
		after = n
	}

	limit := 100
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			h.fail(w, r, tenure.ValidationError{Field: "limit", Message: "must be between 1 and 1000"})
			return 0, 0, false
		}
		limit = n
	}
	return after, limit, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && code == CodeInternal {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}

	msg := err.Error()
	if code == CodeInternal {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // the status line is already sent
}
