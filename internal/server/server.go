package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"upirails/internal/config"
	"upirails/internal/escrow"
	"upirails/internal/hmacauth"
	"upirails/internal/idempotency"
	"upirails/internal/lifecycle"
	"upirails/internal/metadata"
	"upirails/internal/oracle"
	"upirails/internal/upi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cfg        *config.Config
	svc        *lifecycle.Service
	ledger     escrow.Client
	prices     *oracle.Client
	store      idempotency.Store
	hmac       *hmacauth.Verifier
	httpServer *http.Server
	metrics    *metricsRegistry

	rpcHealthFn   func(context.Context) error
	storeHealthFn func(context.Context) error
}

func NewServer(cfg *config.Config, svc *lifecycle.Service, ledger escrow.Client, prices *oracle.Client, store idempotency.Store, meta metadata.Store) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		ledger: ledger,
		prices: prices,
		store:  store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Server.HMACSecret,
			MaxSkew: cfg.ClockSkew(),
		},
		metrics: newMetricsRegistry(),
	}

	if checker, ok := ledger.(escrow.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}
	if checker, ok := meta.(interface{ Ping(context.Context) error }); ok {
		s.storeHealthFn = checker.Ping
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/requests", s.handleListRequests)
		r.Get("/requests/{id}", s.handleGetRequest)
		r.Get("/requests/{id}/upi", s.handleRequestUPI)
		r.Get("/payers/{address}/commitments", s.handlePayerCommitments)
		r.Get("/requesters/{address}/requests", s.handleRequesterRequests)
		r.Get("/balances/{address}", s.handleBalances)
		r.Get("/gas-price", s.handleGasPrice)
		r.Get("/platform-fee", s.handlePlatformFee)
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())

		r.Group(func(r chi.Router) {
			r.Use(s.hmac.Middleware)
			r.Post("/requests", s.handleCreateRequest)
			r.Post("/requests/{id}/commit", s.handleCommit)
			r.Post("/requests/{id}/fulfill", s.handleFulfill)
		})
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// DTOs

type remainingDTO struct {
	State   string `json:"state"`
	Seconds int64  `json:"seconds,omitempty"`
}

type requestDTO struct {
	ID            uint64        `json:"id"`
	Requester     string        `json:"requester"`
	Payer         string        `json:"payer,omitempty"`
	AmountFiat    int64         `json:"amountFiat"`
	DepositToken  string        `json:"depositToken,omitempty"`
	DepositAmount float64       `json:"depositAmount"`
	PayerBonus    float64       `json:"payerBonus"`
	Status        string        `json:"status"`
	CreatedAt     string        `json:"createdAt,omitempty"`
	CommittedAt   string        `json:"committedAt,omitempty"`
	ExpiresAt     string        `json:"expiresAt,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	UPIID         string        `json:"upiId,omitempty"`
	PayeeName     string        `json:"payeeName,omitempty"`
	Note          string        `json:"note,omitempty"`
	Reopened      bool          `json:"reopened"`
	Label         string        `json:"label,omitempty"`
	Description   string        `json:"description,omitempty"`
	Remaining     *remainingDTO `json:"remaining,omitempty"`
}

type valuationDTO struct {
	DepositFiat  float64 `json:"depositFiat"`
	BonusFiat    float64 `json:"bonusFiat"`
	Total        float64 `json:"total"`
	UsedFallback bool    `json:"usedFallback"`
}

func (s *Server) toDTO(v lifecycle.View) requestDTO {
	dto := requestDTO{
		ID:            v.ID,
		Requester:     v.Requester,
		AmountFiat:    v.AmountFiat,
		DepositToken:  zeroAddressToEmpty(v.DepositToken),
		DepositAmount: v.DepositAmount,
		PayerBonus:    v.PayerBonus,
		Status:        v.Status.String(),
		CreatedAt:     rfc3339OrEmpty(v.CreatedAt),
		CommittedAt:   rfc3339OrEmpty(v.CommittedAt),
		ExpiresAt:     rfc3339OrEmpty(v.ExpiresAt),
		Reference:     v.Reference,
		UPIID:         v.UPIID,
		PayeeName:     v.PayeeName,
		Note:          v.Note,
		Reopened:      v.Reopened,
		Label:         v.Label,
		Description:   lifecycle.ReopenedDescriptionFor(v),
	}
	if dto.Payer = zeroAddressToEmpty(v.Payer); dto.Payer != "" || v.Committed() {
		rem := s.svc.Remaining(v.PaymentRequest)
		dto.Remaining = &remainingDTO{
			State:   rem.State.String(),
			Seconds: int64(rem.Duration / time.Second),
		}
	}
	return dto
}

// Handlers

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListAvailable(r.Context(), r.URL.Query().Get("exclude"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]requestDTO, 0, len(views))
	for _, v := range views {
		out = append(out, s.toDTO(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	rates := s.prices.Rates(r.Context(), s.cfg.Oracle.PriceChainID)
	stable := s.prices.StableRate(r.Context())
	valuation := lifecycle.Valuate(view.PaymentRequest, rates,
		stable, s.cfg.Oracle.FallbackNativeINR)

	writeJSON(w, http.StatusOK, map[string]any{
		"request": s.toDTO(view),
		"valuation": valuationDTO{
			DepositFiat:  valuation.DepositFiat,
			BonusFiat:    valuation.BonusFiat,
			Total:        valuation.Total,
			UsedFallback: valuation.UsedFallback,
		},
	})
}

func (s *Server) handleRequestUPI(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if view.UPIID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no upi identity for request"})
		return
	}

	payload := upi.Build(upi.Payload{
		PayeeAddress: view.UPIID,
		PayeeName:    view.PayeeName,
		Amount:       strconv.FormatInt(view.AmountFiat, 10),
		Currency:     s.cfg.Oracle.Currency,
		Note:         view.Note,
	})
	writeJSON(w, http.StatusOK, map[string]string{"payload": payload})
}

func (s *Server) handlePayerCommitments(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListCommittedByPayer(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]requestDTO, 0, len(views))
	for _, v := range views {
		out = append(out, s.toDTO(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (s *Server) handleRequesterRequests(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListByRequester(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]requestDTO, 0, len(views))
	for _, v := range views {
		out = append(out, s.toDTO(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

type createRequestBody struct {
	AmountFiat    int64   `json:"amountFiat"`
	DepositAmount float64 `json:"depositAmount"`
	BonusAmount   float64 `json:"bonusAmount"`
	UPIID         string  `json:"upiId"`
	PayeeName     string  `json:"payeeName"`
	Note          string  `json:"note"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	s.withIdempotency(w, r, "create", func(ctx context.Context) (int, any, error) {
		var body createRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("invalid json payload")
		}

		result, err := s.svc.Create(ctx, lifecycle.CreateParams{
			AmountFiat:    body.AmountFiat,
			DepositAmount: body.DepositAmount,
			BonusAmount:   body.BonusAmount,
			UPIID:         body.UPIID,
			PayeeName:     body.PayeeName,
			Note:          body.Note,
		})
		if err != nil {
			s.metrics.incCreate("failed")
			return 0, nil, err
		}

		s.metrics.incCreate("created")
		return http.StatusCreated, map[string]any{
			"requestId": result.RequestID,
			"txHash":    result.TxHash,
			"status":    "submitted",
		}, nil
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s.withIdempotency(w, r, "commit", func(ctx context.Context) (int, any, error) {
		handle, err := s.svc.Commit(ctx, id)
		if err != nil {
			s.metrics.incCommit("failed")
			return 0, nil, err
		}
		s.metrics.incCommit("committed")
		return http.StatusOK, map[string]any{
			"requestId": id,
			"txHash":    handle.TxHash,
			"status":    "committed",
		}, nil
	})
}

type fulfillBody struct {
	Reference string `json:"reference"`
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s.withIdempotency(w, r, "fulfill", func(ctx context.Context) (int, any, error) {
		var body fulfillBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("invalid json payload")
		}

		handle, err := s.svc.Fulfill(ctx, id, body.Reference)
		if err != nil {
			s.metrics.incFulfill("failed")
			return 0, nil, err
		}
		s.metrics.incFulfill("fulfilled")
		return http.StatusOK, map[string]any{
			"requestId": id,
			"txHash":    handle.TxHash,
			"status":    "fulfilled",
		}, nil
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.prices.Balances(r.Context(), s.cfg.Oracle.PriceChainID, chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (s *Server) handleGasPrice(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.prices.GasPrice(r.Context(), s.cfg.Oracle.PriceChainID)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handlePlatformFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.ledger.PlatformFee(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"platformFee": fee.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.storeHealthFn != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storeHealthFn(storeCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	priceAge := -1.0
	if age, ok := s.prices.CacheAge(s.cfg.Oracle.PriceChainID); ok {
		priceAge = age.Seconds()
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status        string      `json:"status"`
		RPC           interface{} `json:"rpc"`
		MetadataStore interface{} `json:"metadata_store"`
		PriceCacheAge float64     `json:"price_cache_age_seconds"`
	}{
		Status:        status,
		RPC:           rpcInfo,
		MetadataStore: storeInfo,
		PriceCacheAge: priceAge,
	}

	if !overallHealthy {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// withIdempotency replays the stored response for a repeated key so retried
// mutations never re-submit a ledger transaction.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Idempotency-Key header"})
		return
	}
	key = op + ":" + key

	ctx := r.Context()
	if existing, _ := s.store.Get(ctx, key); existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Response)
		return
	}

	status, payload, err := fn(ctx)
	if err != nil {
		if status == 0 {
			status = statusForError(err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	body, _ := json.Marshal(payload)
	record := idempotency.Record{
		StatusCode: status,
		Response:   body,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(s.cfg.IdempotencyWindow()),
	}
	_ = s.store.Save(ctx, key, record)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidReference),
		errors.Is(err, lifecycle.ErrInvalidAmount),
		errors.Is(err, lifecycle.ErrTransactionRejected):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, lifecycle.ErrSelfCommit):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrAlreadyCommitted):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return 0, false
	}
	return id, true
}

func rfc3339OrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func zeroAddressToEmpty(addr string) string {
	if addr == "" || addr == "0x0000000000000000000000000000000000000000" {
		return ""
	}
	return addr
}
