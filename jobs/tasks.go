package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskImportProcess processes one uploaded import file.
	TaskImportProcess = "import:process"
	// TaskImportStaleSweep fails jobs stuck in processing.
	TaskImportStaleSweep = "import:stale_sweep"
)

// ImportProcessPayload identifies the job to process and carries the
// uploader's identity so audit entries written by the worker match the
// original request.
type ImportProcessPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	ActorID   string    `json:"actor_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// NewImportProcessTask constructs an Asynq task.
func NewImportProcessTask(payload ImportProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportProcess, data), nil
}

// NewImportStaleSweepTask constructs the periodic sweep task.
func NewImportStaleSweepTask() *asynq.Task {
	return asynq.NewTask(TaskImportStaleSweep, nil)
}
