package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned for unknown workflow IDs
var ErrRunNotFound = errors.New("run not found")

// WorkflowStatusInfo is a row of the DBOS workflow status table
type WorkflowStatusInfo struct {
	WorkflowUUID string
	Status       string
	Name         string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetWorkflowStatus reads the status of a workflow from the DBOS system tables
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	query := `
		SELECT workflow_uuid, status, name, COALESCE(error, ''), created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var (
		info             WorkflowStatusInfo
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, query, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&info.Error,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}

	info.CreatedAt = time.UnixMilli(created)
	info.UpdatedAt = time.UnixMilli(updated)
	return &info, nil
}
