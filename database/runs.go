package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run statuses
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// PipelineRun is one recorded execution of the pipeline
type PipelineRun struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	RunID       string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	SensorRows  int64      `json:"sensor_rows"`
	CountRows   int64      `json:"count_rows"`
	DerivedRows int64      `json:"derived_rows"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName keeps the ledger apart from the staged tables
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// Duration returns how long the run took, or has taken so far
func (r PipelineRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunLedger records pipeline runs in the staging database
type RunLedger struct {
	db *gorm.DB
}

// NewRunLedger creates a ledger on db
func NewRunLedger(db *gorm.DB) *RunLedger {
	return &RunLedger{db: db}
}

// InitializeRunTable creates the ledger table if it doesn't exist
func (l *RunLedger) InitializeRunTable(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&PipelineRun{}); err != nil {
		return fmt.Errorf("failed to initialize run table: %w", err)
	}
	return nil
}

// Start records a new running run with a fresh run id
func (l *RunLedger) Start(ctx context.Context) (*PipelineRun, error) {
	if err := l.InitializeRunTable(ctx); err != nil {
		return nil, err
	}

	run := &PipelineRun{
		RunID:     uuid.NewString(),
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	return run, nil
}

// Finish marks run as succeeded, or failed with runErr, and stores its row counts
func (l *RunLedger) Finish(ctx context.Context, run *PipelineRun, runErr error) error {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = RunSucceeded
	run.Error = ""
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PipelineRun{}).Where("run_id = ?", run.RunID).Updates(map[string]interface{}{
			"status":       run.Status,
			"finished_at":  run.FinishedAt,
			"sensor_rows":  run.SensorRows,
			"count_rows":   run.CountRows,
			"derived_rows": run.DerivedRows,
			"error":        run.Error,
		})
		if result.Error != nil {
			return fmt.Errorf("failed to record run finish: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("run %s not found in ledger", run.RunID)
		}
		return nil
	})
}

// Recent returns up to limit runs, newest first
func (l *RunLedger) Recent(ctx context.Context, limit int) ([]PipelineRun, error) {
	if err := l.InitializeRunTable(ctx); err != nil {
		return nil, err
	}

	var runs []PipelineRun
	result := l.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list runs: %w", result.Error)
	}
	return runs, nil
}
