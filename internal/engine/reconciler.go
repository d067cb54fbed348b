package engine

import (
	"context"
	"time"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/pkg/logger"
	"github.com/quantrail/signals/pkg/redis"
)

// Reconciler replaces each company's stored signal with the verdict of its
// applicable formula. Every company gets its own transactional
// delete-then-insert; a company whose evaluation fails keeps its
// last-known-good signal and never aborts the batch.
type Reconciler struct {
	resolver *Resolver
	signals  contracts.SignalRepository
	cache    *redis.Cache
	log      *logger.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(resolver *Resolver, signals contracts.SignalRepository, log *logger.Logger) *Reconciler {
	return &Reconciler{
		resolver: resolver,
		signals:  signals,
		log:      log,
		now:      time.Now,
	}
}

// WithCache registers a cache whose signal entries are invalidated on every
// replace.
func (rc *Reconciler) WithCache(cache *redis.Cache) *Reconciler {
	rc.cache = cache
	return rc
}

// ReconcileOne evaluates and replaces a single company's signal. It reports
// whether a new signal row was written. On an evaluation error the signal
// table is left untouched.
func (rc *Reconciler) ReconcileOne(ctx context.Context, company *contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) (bool, error) {
	result, err := rc.resolver.Resolve(ctx, company, formulas, sectors)
	if err != nil {
		return false, err
	}

	sig := result.ToSignal(company.ID, rc.now())
	if err := rc.signals.Replace(ctx, company.ID, sig); err != nil {
		return false, err
	}

	if rc.cache != nil {
		if err := rc.cache.Delete(ctx, "signal:"+company.Ticker); err != nil {
			rc.log.WithError(err).WithField("ticker", company.Ticker).Warn("Failed to invalidate signal cache")
		}
	}

	return sig != nil, nil
}

// Reconcile runs ReconcileOne over a set of companies and returns the number
// of signals written. Per-company failures are logged and skipped.
func (rc *Reconciler) Reconcile(ctx context.Context, companies []*contracts.Company, formulas []*contracts.Formula, sectors map[int64]*contracts.Sector) int {
	generated := 0
	for _, company := range companies {
		ok, err := rc.ReconcileOne(ctx, company, formulas, sectors)
		if err != nil {
			rc.log.WithError(err).WithFields(map[string]interface{}{
				"company": company.ID,
				"ticker":  company.Ticker,
			}).Warn("Company evaluation failed, keeping previous signal")
			continue
		}
		if ok {
			generated++
		}
	}
	return generated
}
