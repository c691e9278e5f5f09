// janitor.go — фоновая очистка устаревших отпечатков resumable-загрузок.
// Backend хранит незавершённую загрузку ограниченное время, после чего
// сохранённый URL бесполезен.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pocketshare/internal/repository"
)

// Prometheus-метрики очистки отпечатков.
var (
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_fingerprint_purge_runs_total",
		Help: "Общее количество запусков очистки отпечатков",
	})

	janitorPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_fingerprints_purged_total",
		Help: "Общее количество удалённых устаревших отпечатков",
	})
)

// FingerprintJanitor — периодическое удаление отпечатков старше maxAge.
type FingerprintJanitor struct {
	store    repository.FingerprintStore
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewFingerprintJanitor создаёт сервис очистки.
func NewFingerprintJanitor(
	store repository.FingerprintStore,
	interval, maxAge time.Duration,
	logger *slog.Logger,
) *FingerprintJanitor {
	return &FingerprintJanitor{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "fingerprint_janitor")),
	}
}

// Start запускает фоновую горутину очистки.
func (j *FingerprintJanitor) Start(ctx context.Context) {
	jctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(jctx)

	j.logger.Info("Очистка отпечатков запущена",
		slog.String("interval", j.interval.String()),
		slog.String("max_age", j.maxAge.String()),
	)
}

// Stop останавливает фоновую очистку.
func (j *FingerprintJanitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Очистка отпечатков остановлена")
}

func (j *FingerprintJanitor) run(ctx context.Context) {
	j.RunOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce удаляет отпечатки старше maxAge и возвращает их число.
func (j *FingerprintJanitor) RunOnce(ctx context.Context) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	janitorRunsTotal.Inc()
	n, err := j.store.PurgeOlderThan(ctx, time.Now().UTC().Add(-j.maxAge))
	if err != nil {
		j.logger.Warn("Ошибка очистки отпечатков",
			slog.String("error", err.Error()),
		)
		return 0
	}
	janitorPurgedTotal.Add(float64(n))
	if n > 0 {
		j.logger.Info("Устаревшие отпечатки удалены",
			slog.Int64("count", n),
		)
	}
	return n
}
