// Package server exposes the ledger and dam over HTTP/JSON and gRPC.
// Writes go to the in-memory ledger; reads are served either live
// (ledger views) or from projections (query service).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"FlowLedger/internal/dam"
	"FlowLedger/internal/ledger"
	"FlowLedger/internal/observability"
	"FlowLedger/internal/oracle"
	"FlowLedger/internal/query"
	"FlowLedger/internal/split"
)

// Deps holds everything the HTTP handlers touch.
type Deps struct {
	Ledger        *ledger.Ledger
	Dam           *dam.Dam
	Query         *query.Service
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// HTTPServer is the JSON API plus health and metrics endpoints.
type HTTPServer struct {
	server *http.Server
	deps   *Deps
	log    zerolog.Logger
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{deps: deps, log: deps.Logger}

	mux := http.NewServeMux()

	// Ledger writes
	mux.HandleFunc("POST /v1/ledger/deposit", s.instrument("deposit", s.handleDeposit))
	mux.HandleFunc("POST /v1/ledger/withdraw", s.instrument("withdraw", s.handleWithdraw))
	mux.HandleFunc("POST /v1/ledger/transfer", s.instrument("transfer", s.handleTransfer))
	mux.HandleFunc("POST /v1/accounts/{account}/hat", s.instrument("change_hat", s.handleChangeHat))
	mux.HandleFunc("POST /v1/accounts/{account}/claim", s.instrument("claim_interest", s.handleClaimInterest))

	// Live ledger views
	mux.HandleFunc("GET /v1/accounts/{account}", s.handleAccount)
	mux.HandleFunc("GET /v1/ledger/stats", s.handleStats)

	// Dam control
	mux.HandleFunc("POST /v1/dam/operate", s.instrument("operate_dam", s.handleOperate))
	mux.HandleFunc("POST /v1/dam/rounds/close", s.instrument("end_round", s.handleEndRound))
	mux.HandleFunc("POST /v1/dam/deposit", s.instrument("dam_deposit", s.handleDamDeposit))
	mux.HandleFunc("POST /v1/dam/withdrawals", s.instrument("schedule_withdrawal", s.handleScheduleWithdrawal))
	mux.HandleFunc("POST /v1/dam/decommission", s.instrument("decommission_dam", s.handleDecommission))
	mux.HandleFunc("POST /v1/dam/upstream", s.instrument("set_upstream", s.handleSetUpstream))
	mux.HandleFunc("POST /v1/dam/oracle", s.instrument("set_oracle", s.handleSetOracle))
	mux.HandleFunc("GET /v1/dam", s.handleDamState)

	// Projection reads
	mux.HandleFunc("GET /v1/accounts/{account}/balance", s.handleProjectedBalance)
	mux.HandleFunc("GET /v1/accounts/{account}/hat", s.handleProjectedHat)
	mux.HandleFunc("GET /v1/accounts/{account}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/dams/{dam}/rounds", s.handleRounds)
	mux.HandleFunc("GET /v1/integrity", s.handleIntegrity)

	mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
	mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Ledger handlers ---

type depositRequest struct {
	Sender      string   `json:"sender"`
	Receiver    string   `json:"receiver"`
	Amount      int64    `json:"amount"`
	Recipients  []string `json:"recipients,omitempty"`
	Proportions []uint32 `json:"proportions,omitempty"`
}

func (s *HTTPServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.deps.Ledger.Deposit(
		ledger.Address(req.Sender), ledger.Address(req.Receiver),
		req.Amount, toAddresses(req.Recipients), req.Proportions,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"balance": s.deps.Ledger.BalanceOf(ledger.Address(req.Receiver)),
	})
}

type withdrawRequest struct {
	Owner    string `json:"owner"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

func (s *HTTPServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	paid, err := s.deps.Ledger.Withdraw(
		ledger.Address(req.Owner), ledger.Address(req.Receiver), req.Amount,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"withdrawn": paid})
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (s *HTTPServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Ledger.Transfer(
		ledger.Address(req.From), ledger.Address(req.To), req.Amount,
	); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type changeHatRequest struct {
	Recipients  []string `json:"recipients"`
	Proportions []uint32 `json:"proportions"`
}

func (s *HTTPServer) handleChangeHat(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	var req changeHatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Ledger.ChangeHat(
		ledger.Address(account), toAddresses(req.Recipients), req.Proportions,
	); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleClaimInterest(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	claimed, err := s.deps.Ledger.ClaimInterest(ledger.Address(account))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.deps.Metrics != nil && claimed > 0 {
		s.deps.Metrics.InterestClaimedTotal.Add(float64(claimed))
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"claimed": claimed})
}

func (s *HTTPServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := ledger.Address(r.PathValue("account"))
	payable, err := s.deps.Ledger.InterestPayable(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hat := s.deps.Ledger.HatOf(account)
	resp := map[string]interface{}{
		"account":          string(account),
		"balance":          s.deps.Ledger.BalanceOf(account),
		"interest_payable": payable,
		"hat_recipients":   hat.Recipients,
		"hat_proportions":  hat.Proportions,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"total_supply": s.deps.Ledger.TotalSupply(),
		"total_assets": s.deps.Ledger.TotalAssets(),
	})
}

// --- Dam handlers ---

type operateRequest struct {
	Amount            int64  `json:"amount"`
	PeriodSeconds     int64  `json:"period_seconds"`
	ReinvestmentRatio uint32 `json:"reinvestment_ratio"`
	AutoStreamRatio   uint32 `json:"auto_stream_ratio"`
}

func (s *HTTPServer) handleOperate(w http.ResponseWriter, r *http.Request) {
	var req operateRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.deps.Dam.OperateDam(
		req.Amount, time.Duration(req.PeriodSeconds)*time.Second,
		req.ReinvestmentRatio, req.AutoStreamRatio,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "operating"})
}

type endRoundRequest struct {
	Plan      []byte `json:"plan"`
	Signature []byte `json:"signature"`
}

func (s *HTTPServer) handleEndRound(w http.ResponseWriter, r *http.Request) {
	var req endRoundRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Dam.EndRound(req.Plan, req.Signature); err != nil {
		s.writeError(w, err)
		return
	}
	round := s.deps.Dam.Round()
	s.writeJSON(w, http.StatusOK, map[string]int64{"current_round": round.ID})
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *HTTPServer) handleDamDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Dam.Deposit(req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scheduleWithdrawalRequest struct {
	Amount   int64  `json:"amount"`
	Receiver string `json:"receiver"`
}

func (s *HTTPServer) handleScheduleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req scheduleWithdrawalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Dam.ScheduleWithdrawal(req.Amount, ledger.Address(req.Receiver)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

type decommissionRequest struct {
	Receiver string `json:"receiver"`
}

func (s *HTTPServer) handleDecommission(w http.ResponseWriter, r *http.Request) {
	var req decommissionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Dam.DecommissionDam(ledger.Address(req.Receiver)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "decommissioned"})
}

type upstreamRequest struct {
	PeriodSeconds     int64  `json:"period_seconds"`
	ReinvestmentRatio uint32 `json:"reinvestment_ratio"`
	AutoStreamRatio   uint32 `json:"auto_stream_ratio"`
}

func (s *HTTPServer) handleSetUpstream(w http.ResponseWriter, r *http.Request) {
	var req upstreamRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.deps.Dam.SetUpstream(
		time.Duration(req.PeriodSeconds)*time.Second,
		req.ReinvestmentRatio, req.AutoStreamRatio,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "staged"})
}

type setOracleRequest struct {
	PublicKey string `json:"public_key"`
}

func (s *HTTPServer) handleSetOracle(w http.ResponseWriter, r *http.Request) {
	var req setOracleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Dam.SetOracle(req.PublicKey); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "staged"})
}

func (s *HTTPServer) handleDamState(w http.ResponseWriter, r *http.Request) {
	round := s.deps.Dam.Round()
	upstream := s.deps.Dam.Upstream()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":              s.deps.Dam.State().String(),
		"flowing":            s.deps.Dam.Flowing(),
		"oracle":             s.deps.Dam.Oracle(),
		"round_id":           round.ID,
		"round_start":        round.StartTime.Unix(),
		"round_end":          round.EndTime.Unix(),
		"period_seconds":     int64(upstream.Period / time.Second),
		"reinvestment_ratio": upstream.ReinvestmentRatio,
		"auto_stream_ratio":  upstream.AutoStreamRatio,
		"queued_withdrawals": s.deps.Dam.WithdrawalCount(),
	})
}

// --- Projection handlers ---

func (s *HTTPServer) handleProjectedBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.GetBalance(r.Context(), r.PathValue("account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleProjectedHat(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.GetHat(r.Context(), r.PathValue("account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	from := queryInt(r, "from", 0)
	limit := queryInt(r, "limit", 100)
	events, err := s.deps.Query.GetEvents(r.Context(), r.PathValue("account"), from, int(limit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *HTTPServer) handleRounds(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	rounds, err := s.deps.Query.GetRounds(r.Context(), r.PathValue("dam"), int(limit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rounds": rounds})
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument times a write operation and counts rejections by the
// response class.
func (s *HTTPServer) instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		s.deps.Metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if sw.status >= http.StatusBadRequest {
			s.deps.Metrics.OpsRejected.WithLabelValues(op, reasonFor(sw.status)).Inc()
		}
	}
}

func reasonFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "signature"
	case http.StatusConflict:
		return "state"
	default:
		return "internal"
	}
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return false
	}
	return true
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP statuses: validation failures
// are 400, state conflicts 409, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidAmountRequest),
		errors.Is(err, ledger.ErrInvalidHatLength),
		errors.Is(err, ledger.ErrCyclicHat),
		errors.Is(err, dam.ErrInvalidPeriod),
		errors.Is(err, dam.ErrInvalidRatio),
		errors.Is(err, dam.ErrInvalidReceiver),
		errors.Is(err, dam.ErrInvalidPlan),
		errors.Is(err, split.ErrInvalidProportion),
		errors.Is(err, split.ErrNoRecipients):
		return http.StatusBadRequest
	case errors.Is(err, oracle.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, dam.ErrDamAlreadyOperating),
		errors.Is(err, dam.ErrDamNotOperating),
		errors.Is(err, dam.ErrRoundNotEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toAddresses(ss []string) []ledger.Address {
	if len(ss) == 0 {
		return nil
	}
	out := make([]ledger.Address, len(ss))
	for i, s := range ss {
		out[i] = ledger.Address(s)
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
