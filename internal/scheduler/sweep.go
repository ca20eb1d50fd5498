// Package scheduler runs the periodic curated-layer conversion sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/metrics"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// Triggers of a sweep.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// ConvertFunc converts one table
type ConvertFunc func(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error)

// Notifier receives the finished execution of every sweep
type Notifier interface {
	Notify(ctx context.Context, exec *models.Execution) error
}

// Sweeper converts a fixed list of tables one after another
type Sweeper struct {
	tables   []config.TableRef
	convert  ConvertFunc
	store    *ExecutionStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. notifier may be nil.
func NewSweeper(tables []config.TableRef, convert ConvertFunc, store *ExecutionStore, notifier Notifier, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		tables:   tables,
		convert:  convert,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execution returns a stored execution.
func (s *Sweeper) Execution(id string) (*models.Execution, error) {
	return s.store.Get(id)
}

// Run converts every configured table, continuing past failures, and
// records the execution. The execution is failed when any table failed.
func (s *Sweeper) Run(ctx context.Context, trigger string) (*models.Execution, error) {
	exec := &models.Execution{
		ExecutionID: uuid.NewString(),
		Trigger:     trigger,
		StartedAt:   s.now(),
		TablesCount: len(s.tables),
		Status:      models.ExecutionRunning,
		Results:     []models.TableResult{},
	}
	if err := s.store.Save(exec); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("execution_id", exec.ExecutionID), zap.String("trigger", trigger))
	log.Info("sweep started", zap.Int("tables", len(s.tables)))

	for _, ref := range s.tables {
		res := models.TableResult{SourceName: ref.SourceName, TableName: ref.TableName}
		out, err := s.convert(ctx, models.ConversionRequest{SourceName: ref.SourceName, TableName: ref.TableName})
		if err != nil {
			res.Error = err.Error()
			log.Error("table conversion failed",
				zap.String("source", ref.SourceName), zap.String("table", ref.TableName), zap.Error(err))
		} else {
			res.Success = true
			res.Operation = out.Operation
		}
		metrics.CounterSweepTables.WithLabelValues(metrics.Status(err)).Inc()
		exec.Results = append(exec.Results, res)
	}

	ended := s.now()
	exec.EndedAt = &ended
	exec.Status = models.ExecutionCompleted
	if failed := len(exec.Results) - exec.Succeeded(); failed > 0 {
		exec.Status = models.ExecutionFailed
		exec.Error = fmt.Sprintf("%d of %d tables failed", failed, len(exec.Results))
	}
	if err := s.store.Save(exec); err != nil {
		return nil, err
	}
	log.Info("sweep finished", zap.String("status", exec.Status), zap.Int("succeeded", exec.Succeeded()))

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, exec); err != nil {
			log.Warn("sweep notification failed", zap.Error(err))
		}
	}
	return exec, nil
}
