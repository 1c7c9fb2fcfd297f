package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mag1cfrog/stock-trading-bot/bucket"
	"github.com/mag1cfrog/stock-trading-bot/catalog"
	"github.com/mag1cfrog/stock-trading-bot/manifest"
)

// WorkerConfig tunes a backlog drain.
type WorkerConfig struct {
	// Workers is the number of parallel drain loops; <=0 means 1.
	Workers int
	// BatchSize is the number of gaps leased per round trip; <=0 means 1.
	BatchSize int
	// LeaseTTL is how long a leased gap stays owned before it can be
	// stolen; <=0 means 5 minutes.
	LeaseTTL time.Duration
	// RetryBudget caps the elapsed time spent retrying one gap's
	// retryable fetch errors; <=0 means 2 minutes.
	RetryBudget time.Duration
}

// Worker drains the gap backlog through a Fetcher until no leasable
// gaps remain.
type Worker struct {
	ID      string
	Fetcher Fetcher
	Cfg     WorkerConfig

	log *logrus.Entry
}

// NewWorker builds a worker with a generated identity.
func NewWorker(f Fetcher, cfg WorkerConfig) *Worker {
	id := "worker-" + uuid.NewString()
	return &Worker{
		ID:      id,
		Fetcher: f,
		Cfg:     cfg,
		log:     logrus.WithField("worker", id),
	}
}

// Run leases and processes gaps until the backlog is drained or ctx is
// cancelled. The context must carry the store handle.
func (w *Worker) Run(ctx context.Context) error {
	workers := w.Cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return w.drain(gctx)
		})
	}
	return g.Wait()
}

func (w *Worker) drain(ctx context.Context) error {
	batch := w.Cfg.BatchSize
	if batch <= 0 {
		batch = 1
	}
	ttl := w.Cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	for {
		ids, err := manifest.GapsLease(ctx, w.ID, batch, ttl)
		if err != nil {
			return errors.Wrap(err, "lease gaps")
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.processGap(ctx, id); err != nil {
				w.log.WithField("gap", id).WithError(err).Warn("gap failed")
				if ferr := manifest.GapsFail(ctx, id, err.Error()); ferr != nil {
					return errors.Wrap(ferr, "record gap failure")
				}
			}
		}
	}
}

func (w *Worker) processGap(ctx context.Context, gapID int64) error {
	gap, err := manifest.GapByID(ctx, gapID)
	if err != nil {
		return err
	}
	m, err := manifest.Get(ctx, gap.ManifestID)
	if err != nil {
		return err
	}

	remote, err := catalog.RemoteSymbol(ctx, m.ProviderCode, m.AssetClassCode, m.Symbol)
	if errors.Cause(err) == catalog.ErrSymbolNotFound {
		remote = m.Symbol
	} else if err != nil {
		return err
	}

	req := Request{
		Symbol:       m.Symbol,
		RemoteSymbol: remote,
		Provider:     m.ProviderCode,
		AssetClass:   m.AssetClassCode,
		Timeframe:    m.Timeframe,
		Start:        gap.Start,
		End:          gap.End,
	}

	if err := w.fetchWithRetry(ctx, req); err != nil {
		return err
	}
	if err := w.recordCoverage(ctx, m, gap); err != nil {
		return err
	}

	if m.Watermark == nil || gap.End.After(*m.Watermark) {
		if err := manifest.SetWatermark(ctx, m.ID, gap.End); err != nil {
			return err
		}
	}

	if err := manifest.GapsComplete(ctx, gapID); err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{
		"gap":    gapID,
		"symbol": m.Symbol,
		"range":  gap.End.Sub(gap.Start).String(),
	}).Info("gap acquired")
	return nil
}

// fetchWithRetry retries retryable provider errors with exponential
// backoff; terminal errors fail immediately.
func (w *Worker) fetchWithRetry(ctx context.Context, req Request) error {
	budget := w.Cfg.RetryBudget
	if budget <= 0 {
		budget = 2 * time.Minute
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = budget

	op := func() error {
		_, err := w.Fetcher.FetchBars(ctx, req)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// recordCoverage merges the gap's buckets into the manifest's coverage
// under compare-and-set, re-reading and re-applying on conflict with
// concurrent writers.
func (w *Worker) recordCoverage(ctx context.Context, m *manifest.Manifest, gap *manifest.Gap) error {
	start, err := bucket.ID32(gap.Start, m.Timeframe)
	if err != nil {
		return errors.Wrap(err, "gap start")
	}
	end, err := bucket.ID32(gap.End, m.Timeframe)
	if err != nil {
		return errors.Wrap(err, "gap end")
	}

	const casAttempts = 8
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rb, version, err := manifest.CoverageGet(ctx, m.ID)
		if err != nil {
			return err
		}
		rb.AddRange(uint64(start), uint64(end))
		_, err = manifest.CoveragePut(ctx, m.ID, rb, version)
		if err == nil {
			return nil
		}
		var conflict *manifest.CoverageConflictError
		if !errors.As(err, &conflict) {
			return err
		}
	}
	return errors.Errorf("coverage for manifest %d kept moving after %d attempts", m.ID, casAttempts)
}
