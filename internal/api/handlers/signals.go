package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/pkg/logger"
	"github.com/quantrail/signals/pkg/redis"
)

const signalCacheTTL = 5 * time.Minute

// SignalReader is the read side of the signal store, keyed by ticker.
type SignalReader interface {
	GetByTicker(ctx context.Context, ticker string) (*contracts.Signal, error)
}

// SignalHandler serves current signals. Reads go through the Redis cache
// when one is configured; the reconciler invalidates entries on write.
type SignalHandler struct {
	signals SignalReader
	cache   *redis.Cache
	logger  *logger.Logger
}

func NewSignalHandler(signals SignalReader, cache *redis.Cache, log *logger.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		cache:   cache,
		logger:  log,
	}
}

// GetByTicker returns the company's current signal.
// GET /api/companies/{ticker}/signal
func (h *SignalHandler) GetByTicker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]
	cacheKey := "signal:" + ticker

	if h.cache != nil {
		var cached contracts.Signal
		hit, err := h.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			h.logger.WithError(err).WithField("ticker", ticker).Warn("Signal cache read failed")
		}
		if hit {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	sig, err := h.signals.GetByTicker(ctx, ticker)
	if errors.Is(err, contracts.ErrSignalNotFound) {
		respondError(w, http.StatusNotFound, "No signal for company")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to load signal")
		respondError(w, http.StatusInternalServerError, "Failed to load signal")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, sig, signalCacheTTL); err != nil {
			h.logger.WithError(err).WithField("ticker", ticker).Warn("Signal cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, sig)
}
