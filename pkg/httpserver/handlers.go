package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/pkg/config"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

const defaultListLimit = 50

type apiHandler struct {
	cfg      *config.Config
	storage  storage.Storage
	executor Executor
	syncer   Syncer
	logger   *zap.Logger
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *apiHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "crossvenue-arb",
	})
}

func (h *apiHandler) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)

	opps, err := h.storage.GetOpportunities(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load opportunities", "")
		h.logger.Error("failed-to-load-opportunities", zap.Error(err))
		return
	}

	if opps == nil {
		opps = []*arbitrage.Opportunity{}
	}
	h.writeJSON(w, http.StatusOK, opps)
}

func (h *apiHandler) handleActiveOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := h.storage.GetActiveOpportunities(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load active opportunities", "")
		h.logger.Error("failed-to-load-active-opportunities", zap.Error(err))
		return
	}

	if opps == nil {
		opps = []*arbitrage.Opportunity{}
	}
	h.writeJSON(w, http.StatusOK, opps)
}

func (h *apiHandler) handleMarkets(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.storage.GetMappings(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load market mappings", "")
		h.logger.Error("failed-to-load-mappings", zap.Error(err))
		return
	}

	if mappings == nil {
		mappings = []*types.CanonicalMarket{}
	}
	h.writeJSON(w, http.StatusOK, mappings)
}

func (h *apiHandler) handleMarketSync(w http.ResponseWriter, r *http.Request) {
	err := h.syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "market sync failed: "+err.Error(), "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "market sync completed"})
}

func (h *apiHandler) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)

	trades, err := h.storage.GetTrades(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load trades", "")
		h.logger.Error("failed-to-load-trades", zap.Error(err))
		return
	}

	if trades == nil {
		trades = []*types.Trade{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

func (h *apiHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.cfg.AutoExecute() {
		h.writeError(w, http.StatusForbidden, "execution is disabled", types.ErrCodeAutoExecuteOff)
		return
	}

	result, err := h.executor.Execute(r.Context(), id)
	if err != nil {
		h.writeExecuteError(w, id, result, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) writeExecuteError(w http.ResponseWriter, id string, result *types.ExecutionResult, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "opportunity not found", "")
		return
	}

	var execErr *types.ExecutionError
	if errors.As(err, &execErr) {
		switch execErr.Code {
		case types.ErrCodeDuplicateExecution:
			h.writeError(w, http.StatusConflict, err.Error(), execErr.Code)
		case types.ErrCodeNotActive:
			h.writeError(w, http.StatusNotFound, err.Error(), execErr.Code)
		case types.ErrCodeSizeLimitExceeded:
			h.writeError(w, http.StatusBadRequest, err.Error(), execErr.Code)
		default:
			// Legs failed after the claim: the result carries trade detail.
			if result != nil {
				h.writeJSON(w, http.StatusInternalServerError, result)
				return
			}
			h.writeError(w, http.StatusInternalServerError, err.Error(), execErr.Code)
		}
		return
	}

	h.logger.Error("execute-failed", zap.String("opportunity-id", id), zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, err.Error(), "")
}

func (h *apiHandler) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.executor.CancelExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "opportunity not found", "")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error(), "")
		h.logger.Error("cancel-execution-failed", zap.String("opportunity-id", id), zap.Error(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// configView is the externally visible configuration.
type configView struct {
	ArbThreshold        float64 `json:"arb_threshold"`
	MinLiquidity        float64 `json:"min_liquidity"`
	MaxPositionSize     float64 `json:"max_position_size"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	AutoExecute         bool    `json:"auto_execute"`
}

func (h *apiHandler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, configView{
		ArbThreshold:        h.cfg.ArbThreshold,
		MinLiquidity:        h.cfg.MinLiquidity,
		MaxPositionSize:     h.cfg.MaxPositionSize,
		SimilarityThreshold: h.cfg.SimilarityThreshold,
		AutoExecute:         h.cfg.AutoExecute(),
	})
}

// handleUpdateConfig accepts only the auto_execute field; every other key is
// rejected so a caller cannot silently believe it changed an immutable knob.
func (h *apiHandler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	raw, ok := body["auto_execute"]
	if !ok || len(body) != 1 {
		h.writeError(w, http.StatusBadRequest, "only auto_execute is mutable", "")
		return
	}

	var autoExecute bool
	err = json.Unmarshal(raw, &autoExecute)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "auto_execute must be a boolean", "")
		return
	}

	h.cfg.SetAutoExecute(autoExecute)
	h.logger.Info("auto-execute-updated", zap.Bool("enabled", autoExecute))

	h.handleGetConfig(w, r)
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
