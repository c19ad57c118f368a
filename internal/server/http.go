package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"StakeLedger/internal/core"
	"StakeLedger/internal/event"
	"StakeLedger/internal/observability"
	"StakeLedger/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the HTTP command and query surface. Commands go through the
// same deterministic core as NATS-ingested ones; queries read either the
// core's in-memory state or the projection tables.
type Server struct {
	ext     *core.Extension
	queries *query.QueryService
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewServer(
	ext *core.Extension,
	queries *query.QueryService,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	return &Server{
		ext:     ext,
		queries: queries,
		health:  health,
		metrics: metrics,
		log:     logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/join", s.handleJoin).Methods(http.MethodPost)
	r.HandleFunc("/v1/exit", s.handleExit).Methods(http.MethodPost)
	r.HandleFunc("/v1/claim", s.handleClaim).Methods(http.MethodPost)
	r.HandleFunc("/v1/claims", s.handleClaimBatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/sweep", s.handleSweep).Methods(http.MethodPost)

	r.HandleFunc("/v1/accounts/{account}/position", s.handlePosition).Methods(http.MethodGet)
	r.HandleFunc("/v1/accounts/{account}/joined-value", s.handleJoinedValue).Methods(http.MethodGet)
	r.HandleFunc("/v1/accounts/{account}/rewards/{round}", s.handleRewardPreview).Methods(http.MethodGet)
	r.HandleFunc("/v1/accounts/{account}/claims", s.handleClaimHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/accounts/{account}/summary", s.handleAccountSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/accounts/{account}/events", s.handleEventHistory).Methods(http.MethodGet)

	r.HandleFunc("/v1/rounds/{round}/settlements", s.handleRoundSettlements).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds/{round}/sweep", s.handleSweepRecord).Methods(http.MethodGet)

	r.HandleFunc("/v1/integrity", s.handleIntegrity).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)

	return r
}

// --- command handlers ---

type joinRequest struct {
	CommandID string `json:"command_id,omitempty"`
	Account   string `json:"account"`
	Amount    int64  `json:"amount"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "join", http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, "join", http.StatusBadRequest, "invalid account")
		return
	}
	commandID, ok := s.commandID(w, "join", req.CommandID)
	if !ok {
		return
	}

	result, err := s.ext.Apply(&event.JoinCommand{
		CommandID:   commandID,
		AccountID:   account,
		Amount:      req.Amount,
		TimestampUs: time.Now().UnixMicro(),
	})
	s.writeCommandResult(w, "join", commandID, result, err)
}

type exitRequest struct {
	CommandID string `json:"command_id,omitempty"`
	Account   string `json:"account"`
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "exit", http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, "exit", http.StatusBadRequest, "invalid account")
		return
	}
	commandID, ok := s.commandID(w, "exit", req.CommandID)
	if !ok {
		return
	}

	result, err := s.ext.Apply(&event.ExitCommand{
		CommandID:   commandID,
		AccountID:   account,
		TimestampUs: time.Now().UnixMicro(),
	})
	s.writeCommandResult(w, "exit", commandID, result, err)
}

type claimRequest struct {
	CommandID string  `json:"command_id,omitempty"`
	Account   string  `json:"account"`
	Round     int64   `json:"round"`
	Rounds    []int64 `json:"rounds,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "claim", http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, "claim", http.StatusBadRequest, "invalid account")
		return
	}
	commandID, ok := s.commandID(w, "claim", req.CommandID)
	if !ok {
		return
	}

	result, err := s.ext.Apply(&event.ClaimCommand{
		CommandID:   commandID,
		AccountID:   account,
		Round:       req.Round,
		TimestampUs: time.Now().UnixMicro(),
	})
	s.writeCommandResult(w, "claim", commandID, result, err)
}

func (s *Server) handleClaimBatch(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "claims", http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, "claims", http.StatusBadRequest, "invalid account")
		return
	}
	if len(req.Rounds) == 0 {
		s.writeError(w, "claims", http.StatusBadRequest, "rounds required")
		return
	}
	commandID, ok := s.commandID(w, "claims", req.CommandID)
	if !ok {
		return
	}

	result, err := s.ext.Apply(&event.ClaimBatchCommand{
		CommandID:   commandID,
		AccountID:   account,
		Rounds:      req.Rounds,
		TimestampUs: time.Now().UnixMicro(),
	})
	s.writeCommandResult(w, "claims", commandID, result, err)
}

type sweepRequest struct {
	CommandID string `json:"command_id,omitempty"`
	Round     int64  `json:"round"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "sweep", http.StatusBadRequest, "invalid request body")
		return
	}
	commandID, ok := s.commandID(w, "sweep", req.CommandID)
	if !ok {
		return
	}

	result, err := s.ext.Apply(&event.SweepCommand{
		CommandID:   commandID,
		Round:       req.Round,
		TimestampUs: time.Now().UnixMicro(),
	})
	s.writeCommandResult(w, "sweep", commandID, result, err)
}

// --- query handlers ---

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "position", r)
	if !ok {
		return
	}

	pos, found := s.ext.Position(account)
	if !found {
		s.writeError(w, "position", http.StatusNotFound, "no active position")
		return
	}
	s.writeJSON(w, "position", http.StatusOK, map[string]interface{}{
		"account":           pos.AccountID,
		"joined_round":      pos.JoinedRound,
		"amount":            pos.Amount,
		"exitable_block":    pos.ExitableBlock,
		"last_joined_block": pos.LastJoinedBlock,
		"version":           pos.Version,
	})
}

func (s *Server) handleJoinedValue(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "joined-value", r)
	if !ok {
		return
	}

	value, err := s.ext.JoinedValue(account)
	if err != nil {
		s.writeError(w, "joined-value", http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, "joined-value", http.StatusOK, map[string]interface{}{
		"account":      account,
		"joined_value": value,
	})
}

func (s *Server) handleRewardPreview(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "rewards", r)
	if !ok {
		return
	}
	round, ok := s.pathRound(w, "rewards", r)
	if !ok {
		return
	}

	bd, err := s.ext.Preview(round, account)
	if err != nil {
		s.writeError(w, "rewards", http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, "rewards", http.StatusOK, map[string]interface{}{
		"account":      bd.AccountID,
		"round":        bd.Round,
		"lp_ratio":     bd.LPRatio,
		"gov_ratio":    bd.GovRatio,
		"block_ratio":  bd.BlockRatio,
		"capped_ratio": bd.CappedRatio,
		"theoretical":  bd.Theoretical,
		"mint_reward":  bd.MintReward,
		"burn_reward":  bd.BurnReward,
	})
}

func (s *Server) handleClaimHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "claims-history", r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	var beforeRound *int64
	if v := r.URL.Query().Get("before_round"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "claims-history", http.StatusBadRequest, "invalid before_round")
			return
		}
		beforeRound = &n
	}

	entries, err := s.queries.GetClaimHistory(r.Context(), account, limit, beforeRound)
	if err != nil {
		s.writeError(w, "claims-history", http.StatusInternalServerError, "query failed")
		s.log.Error().Err(err).Msg("claim history query failed")
		return
	}
	s.writeJSON(w, "claims-history", http.StatusOK, map[string]interface{}{"claims": entries})
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "summary", r)
	if !ok {
		return
	}

	summary, err := s.queries.GetAccountSummary(r.Context(), account)
	if err != nil {
		s.writeError(w, "summary", http.StatusInternalServerError, "query failed")
		s.log.Error().Err(err).Msg("account summary query failed")
		return
	}
	s.writeJSON(w, "summary", http.StatusOK, summary)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, "events", r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	var beforeSequence *int64
	if v := r.URL.Query().Get("before_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "events", http.StatusBadRequest, "invalid before_sequence")
			return
		}
		beforeSequence = &n
	}

	entries, err := s.queries.GetEventHistory(r.Context(), account, limit, beforeSequence)
	if err != nil {
		s.writeError(w, "events", http.StatusInternalServerError, "query failed")
		s.log.Error().Err(err).Msg("event history query failed")
		return
	}
	s.writeJSON(w, "events", http.StatusOK, map[string]interface{}{"events": entries})
}

func (s *Server) handleRoundSettlements(w http.ResponseWriter, r *http.Request) {
	round, ok := s.pathRound(w, "settlements", r)
	if !ok {
		return
	}

	entries, err := s.queries.GetRoundSettlements(r.Context(), round)
	if err != nil {
		s.writeError(w, "settlements", http.StatusInternalServerError, "query failed")
		s.log.Error().Err(err).Msg("round settlements query failed")
		return
	}
	s.writeJSON(w, "settlements", http.StatusOK, map[string]interface{}{"settlements": entries})
}

func (s *Server) handleSweepRecord(w http.ResponseWriter, r *http.Request) {
	round, ok := s.pathRound(w, "sweep-record", r)
	if !ok {
		return
	}

	rec, found := s.ext.SweepRecord(round)
	if !found {
		s.writeError(w, "sweep-record", http.StatusNotFound, "round not swept")
		return
	}
	s.writeJSON(w, "sweep-record", http.StatusOK, map[string]interface{}{
		"round":        rec.Round,
		"total_joined": rec.TotalJoined,
		"burn_amount":  rec.BurnAmount,
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, "integrity", http.StatusInternalServerError, "verification failed")
		s.log.Error().Err(err).Msg("integrity verification failed")
		return
	}
	s.writeJSON(w, "integrity", http.StatusOK, report)
}

// --- helpers ---

func (s *Server) commandID(w http.ResponseWriter, endpoint, raw string) (uuid.UUID, bool) {
	if raw == "" {
		// No client key: generate one. Retries of this request will not
		// deduplicate.
		return uuid.New(), true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid command_id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *Server) pathAccount(w http.ResponseWriter, endpoint string, r *http.Request) (uuid.UUID, bool) {
	account, err := uuid.Parse(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account")
		return uuid.UUID{}, false
	}
	return account, true
}

func (s *Server) pathRound(w http.ResponseWriter, endpoint string, r *http.Request) (int64, bool) {
	round, err := strconv.ParseInt(mux.Vars(r)["round"], 10, 64)
	if err != nil || round < 0 {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid round")
		return 0, false
	}
	return round, true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

func (s *Server) writeCommandResult(w http.ResponseWriter, endpoint string, commandID uuid.UUID, result *core.Result, err error) {
	if err != nil {
		status := statusForError(err)
		s.writeError(w, endpoint, status, err.Error())
		if s.metrics != nil {
			s.metrics.CommandsRejected.WithLabelValues(endpoint, http.StatusText(status)).Inc()
		}
		return
	}

	resp := map[string]interface{}{
		"command_id": commandID,
		"duplicate":  result.Duplicate,
	}
	if len(result.Rounds) > 0 {
		resp["rounds"] = result.Rounds
		resp["mints"] = result.Mints
		resp["burns"] = result.Burns
	}
	if result.BurnAmount != 0 {
		resp["burn_amount"] = result.BurnAmount
	}

	status := http.StatusOK
	if result.Duplicate {
		// Duplicate command: the original outcome stands
		resp["status"] = "duplicate"
	}
	s.writeJSON(w, endpoint, status, resp)
	if s.metrics != nil {
		s.metrics.CommandsApplied.WithLabelValues(endpoint).Inc()
	}
}

// statusForError maps core sentinel errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInsufficientGovernanceWeight):
		return http.StatusForbidden
	case errors.Is(err, core.ErrZeroTotalGovernanceWeight):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrWaitingPeriodNotElapsed):
		return http.StatusConflict
	case errors.Is(err, core.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, core.ErrRoundNotFinalized):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoPosition):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidJoinAsset):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}
