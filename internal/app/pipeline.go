package app

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/connector"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"go.uber.org/zap"
)

// PassReport summarizes one poll-scan-admit pass.
type PassReport struct {
	Poll     connector.PollResult
	Scan     arbitrage.ScanResult
	Admitted []arbitrage.Opportunity
	Rejected []risk.Decision
}

// Pass polls every connector, waits for the poll to finish, scans the cache
// and runs each opportunity through the risk manager. Exposure counts the
// portfolio plus everything queued but not yet settled, and admitted
// opportunities reserve exposure for the rest of the pass, so neither a pass
// nor a backlog can overrun the exposure limit.
func (a *App) Pass(ctx context.Context) (PassReport, error) {
	var report PassReport

	if a.poller != nil {
		poll, err := a.poller.Poll(ctx, a.cfg.Symbols)
		if err != nil {
			return report, fmt.Errorf("poll: %w", err)
		}
		report.Poll = poll
	}

	scan, err := a.detector.Scan(ctx, a.cfg.Symbols, a.cfg.Exchanges)
	if err != nil {
		return report, err
	}
	report.Scan = scan

	// In-flight is read first: a trade settling in between is counted twice,
	// never missed.
	inflight := a.inflight.total()
	snap := a.portfolio.Snapshot()
	snap.TotalExposure = snap.TotalExposure.Add(inflight)
	for i := range scan.Opportunities {
		decision := a.riskManager.Evaluate(&scan.Opportunities[i], &snap)
		if !decision.Admitted {
			report.Rejected = append(report.Rejected, decision)
			continue
		}
		report.Admitted = append(report.Admitted, decision.Opportunity)
		snap.TotalExposure = snap.TotalExposure.Add(decision.Opportunity.Notional)
	}

	return report, nil
}

// enqueue hands admitted opportunities to the paper trader without blocking
// the scan loop. A full queue drops the opportunity; an open circuit breaker
// drops them all.
func (a *App) enqueue(opps []arbitrage.Opportunity) (queued int) {
	if len(opps) > 0 && a.breaker != nil && !a.breaker.IsEnabled() {
		OpportunitiesDroppedTotal.WithLabelValues("circuit_open").Add(float64(len(opps)))
		a.logger.Warn("opportunities-dropped-circuit-open", zap.Int("count", len(opps)))
		return 0
	}

	for i := range opps {
		opp := opps[i]
		a.inflight.add(opp.Notional)
		select {
		case a.opportunities <- &opp:
			queued++
			OpportunitiesQueuedTotal.Inc()
		default:
			a.inflight.release(opp.Notional)
			OpportunitiesDroppedTotal.WithLabelValues("queue_full").Inc()
			a.logger.Warn("opportunity-dropped-queue-full",
				zap.String("opportunity-id", opp.ID),
				zap.String("symbol", opp.Symbol))
		}
	}
	QueueDepth.Set(float64(len(a.opportunities)))
	return queued
}

// scanLoop runs one pass per scan interval. A pass that overruns the
// interval delays the next tick rather than overlapping it.
func (a *App) scanLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.runPass()
		}
	}
}

func (a *App) runPass() {
	start := time.Now()
	report, err := a.Pass(a.ctx)
	PassDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		PassesTotal.WithLabelValues("error").Inc()
		a.logger.Error("pipeline-pass-failed", zap.Error(err))
		return
	}

	PassesTotal.WithLabelValues("ok").Inc()
	a.healthChecker.MarkScan(a.now())
	queued := a.enqueue(report.Admitted)

	if len(report.Scan.Opportunities) > 0 {
		a.logger.Info("pipeline-pass-complete",
			zap.Int("fetched", report.Poll.Fetched),
			zap.Int("skipped-fetches", report.Poll.Skipped),
			zap.Int("opportunities", len(report.Scan.Opportunities)),
			zap.Int("admitted", len(report.Admitted)),
			zap.Int("rejected", len(report.Rejected)),
			zap.Int("queued", queued),
			zap.Duration("duration", time.Since(start)))
	}
}

// snapshotLoop records a portfolio snapshot every snapshot interval.
func (a *App) snapshotLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.storeSnapshot(a.ctx)
		}
	}
}

func (a *App) storeSnapshot(ctx context.Context) {
	snap := a.portfolio.Snapshot()
	err := a.sink.StoreSnapshot(ctx, &snap)
	if err != nil {
		a.logger.Error("failed-to-store-snapshot", zap.Error(err))
	}
}

// exposureResetLoop releases all exposure every reset interval, modelling
// positions being unwound.
func (a *App) exposureResetLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ExposureResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.portfolio.ResetExposure()
		}
	}
}
