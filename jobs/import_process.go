package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fiscalia/fiscalia/internal/shared"
)

// ImportProcessor is the part of the import orchestrator the worker drives.
type ImportProcessor interface {
	Process(ctx context.Context, jobID uuid.UUID, actor shared.Actor, meta shared.ClientMeta) error
	FailStaleJobs(ctx context.Context) (int64, error)
}

// ImportJob handles import processing tasks.
type ImportJob struct {
	Service ImportProcessor
	Logger  *slog.Logger
}

// NewImportJob wires dependencies for the import handlers.
func NewImportJob(service ImportProcessor, logger *slog.Logger) *ImportJob {
	return &ImportJob{Service: service, Logger: logger}
}

// HandleProcess runs one queued import to completion.
func (j *ImportJob) HandleProcess(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("import process: handler not configured")
	}
	var payload ImportProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.JobID == uuid.Nil {
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.String("job_id", payload.JobID.String()))
	logger.Info("starting import processing")
	start := time.Now()

	actor := shared.Actor{ID: payload.ActorID}
	meta := shared.ClientMeta{IPAddress: payload.IPAddress, UserAgent: payload.UserAgent}
	if err := j.Service.Process(ctx, payload.JobID, actor, meta); err != nil {
		logger.Error("import processing failed", slog.Any("error", err))
		return err
	}
	logger.Info("import processing finished", slog.Duration("duration", time.Since(start)))
	return nil
}

// HandleStaleSweep fails imports stuck in processing beyond the stale window.
func (j *ImportJob) HandleStaleSweep(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("import stale sweep: handler not configured")
	}
	n, err := j.Service.FailStaleJobs(ctx)
	if err != nil {
		j.logger().Error("stale sweep failed", slog.Any("error", err))
		return err
	}
	if n > 0 {
		j.logger().Warn("stale imports failed", slog.Int64("count", n))
	}
	return nil
}

func (j *ImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskImportProcess))
	}
	return slog.Default().With(slog.String("job", TaskImportProcess))
}
