package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrgGraphIntegrity scans the directory for structural faults.
	TaskOrgGraphIntegrity = "orggraph:integrity"
	// TaskMatrixVerify runs the permission matrix verifier.
	TaskMatrixVerify = "rbac:matrix_verify"
)

// IntegrityPayload configures an integrity scan.
type IntegrityPayload struct {
	// FailOnFaults makes the task fail, and therefore retry, when faults are found.
	FailOnFaults bool `json:"fail_on_faults,omitempty"`
}

// NewIntegrityTask constructs an org graph integrity task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrgGraphIntegrity, data), nil
}

// MatrixVerifyPayload configures a matrix run. Empty Permissions means the
// whole catalog.
type MatrixVerifyPayload struct {
	Permissions []string `json:"permissions,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// NewMatrixVerifyTask constructs a matrix verification task.
func NewMatrixVerifyTask(payload MatrixVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatrixVerify, data), nil
}
