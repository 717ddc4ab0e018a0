package repository

import (
	"database/sql"
	"log/slog"

	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// NodeExecutionRepository persists and queries the append-only per-node
// history of a run. Rows are never updated once finalized; re-executed nodes
// get fresh rows with an incremented retry_count.
type NodeExecutionRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewNodeExecutionRepository(db *sql.DB, clock core.Clock) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, clock: clock}
}

const NODE_EXECUTION_COLUMNS = ` id, execution_id, node_id, node_type, node_name, status, branch,
		       input, output, error, started, completed, duration_ms, retry_count, retryable `

// Save inserts a new node execution record.
func (r *NodeExecutionRepository) Save(n *domain.NodeExecution) (string, error) {
	query := `
		INSERT INTO node_executions (
			id, execution_id, node_id, node_type, node_name, status, branch,
			input, output, error, started, completed, duration_ms, retry_count, retryable
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `,
			` + placeholder(8) + `, ` + placeholder(9) + `, ` + placeholder(10) + `, ` + placeholder(11) + `, ` + placeholder(12) + `, ` + placeholder(13) + `, ` + placeholder(14) + `, ` + placeholder(15) + `
		)`
	_, err := r.db.Exec(query,
		n.ID,
		n.ExecutionID,
		n.NodeID,
		n.NodeType,
		n.NodeName,
		n.Status,
		n.Branch,
		n.Input,
		n.Output,
		n.Error,
		formatDateInDatabaseNull(n.Started),
		formatDateInDatabaseNull(n.Completed),
		n.DurationMS,
		n.RetryCount,
		n.Retryable,
	)
	if err != nil {
		slog.Error("Failed to save node execution", "error", err, "executionId", n.ExecutionID, "nodeId", n.NodeID)
	}
	return n.ID, err
}

func scanNodeExecution(row interface{ Scan(...any) error }) (*domain.NodeExecution, error) {
	var n domain.NodeExecution
	err := row.Scan(
		&n.ID,
		&n.ExecutionID,
		&n.NodeID,
		&n.NodeType,
		&n.NodeName,
		&n.Status,
		&n.Branch,
		&n.Input,
		&n.Output,
		&n.Error,
		&n.Started,
		&n.Completed,
		&n.DurationMS,
		&n.RetryCount,
		&n.Retryable,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindByID fetches a single node execution record.
func (r *NodeExecutionRepository) FindByID(id string) (*domain.NodeExecution, error) {
	query := `
		SELECT ` + NODE_EXECUTION_COLUMNS + `
		FROM node_executions
		WHERE id = ` + placeholder(1) + `
	`
	return scanNodeExecution(r.db.QueryRow(query, id))
}

// FindAllByExecutionID returns every node record for a run in the order the
// nodes were started.
func (r *NodeExecutionRepository) FindAllByExecutionID(executionID string) (*[]domain.NodeExecution, error) {
	query := `
		SELECT ` + NODE_EXECUTION_COLUMNS + `
		FROM node_executions
		WHERE execution_id = ` + placeholder(1) + `
		ORDER BY started ASC, id ASC
	`
	rows, err := r.db.Query(query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.NodeExecution
	for rows.Next() {
		n, err := scanNodeExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *n)
	}
	return &records, nil
}

// Finalize records the terminal outcome of one in-flight node record. The
// status guard means a record is finalized at most once; later attempts get
// their own rows.
func (r *NodeExecutionRepository) Finalize(id string, status domain.NodeStatus, branch sql.NullString, output sql.NullString, errMsg sql.NullString, durationMS int64, retryable bool) bool {
	query := `
		UPDATE node_executions
		SET status = ` + placeholder(1) + `, branch = ` + placeholder(2) + `, output = ` + placeholder(3) + `, error = ` + placeholder(4) + `,
		    completed = ` + nowFunc(r.clock) + `, duration_ms = ` + placeholder(5) + `, retryable = ` + placeholder(6) + `
		WHERE id = ` + placeholder(7) + ` AND status IN ('pending', 'running')
	`
	result, err := r.db.Exec(query, string(status), branch, output, errMsg, durationMS, retryable, id)
	if err != nil {
		slog.Error("Failed to finalize node execution", "error", err, "id", id, "status", status)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}
