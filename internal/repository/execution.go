package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/driftflow/driftflow/pkg/driftflow/core"
	domain "github.com/driftflow/driftflow/pkg/driftflow/domain"
)

type ExecutionRepository struct {
	db    *sql.DB
	clock core.Clock
}

// ExecutionOverviewRow holds grouped counts by workflow_id and version
type ExecutionOverviewRow struct {
	WorkflowID     string
	Version        int
	PendingCount   int
	RunningCount   int
	SuccessCount   int
	FailedCount    int
	CancelledCount int
}

const EXECUTION_COLUMNS = ` id, workflow_id, version, status, triggered_by, team,
		       context, output, error, retry_count, created, modified,
		       next_activation, started, completed, engine_id `

func NewExecutionRepository(db *sql.DB, clock core.Clock) *ExecutionRepository {
	return &ExecutionRepository{db: db, clock: clock}
}

func scanExecution(row interface{ Scan(...any) error }) (*domain.WorkflowExecution, error) {
	var ex domain.WorkflowExecution
	err := row.Scan(
		&ex.ID,
		&ex.WorkflowID,
		&ex.Version,
		&ex.Status,
		&ex.TriggeredBy,
		&ex.Team,
		&ex.Context,
		&ex.Output,
		&ex.Error,
		&ex.RetryCount,
		&ex.Created,
		&ex.Modified,
		&ex.NextActivation,
		&ex.Started,
		&ex.Completed,
		&ex.EngineID,
	)
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *ExecutionRepository) FindByID(id string) (*domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions WHERE id = ` + placeholder(1) + `
	`
	return scanExecution(r.db.QueryRow(query, id))
}

func (r *ExecutionRepository) Save(ex *domain.WorkflowExecution) (string, error) {
	vals := []interface{}{ex.ID, ex.WorkflowID, ex.Version, ex.Status, ex.TriggeredBy, ex.Team,
		ex.Context, ex.Output, ex.Error, ex.RetryCount, formatDateInDatabase(ex.Created), formatDateInDatabase(ex.Modified),
		formatDateInDatabaseNull(ex.NextActivation), formatDateInDatabaseNull(ex.Started), formatDateInDatabaseNull(ex.Completed), ex.EngineID}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	query := `INSERT INTO workflow_executions (
		id, workflow_id, version, status, triggered_by, team,
		context, output, error, retry_count, created, modified,
		next_activation, started, completed, engine_id
	) VALUES (` + strings.Join(pps, ", ") + `)`
	_, err := r.db.Exec(query, vals...)
	return ex.ID, err
}

func (r *ExecutionRepository) FindPendingExecutions(size int) (*[]domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE  ` + dateBeforeNow("next_activation", r.clock) + `
		  AND status in ('pending', 'running')
		  AND engine_id IS NULL
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(1) + `
	`

	rows, err := r.db.Query(query, size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}

	return &executions, nil
}

// MarkExecutionAsScheduled claims a run for one engine instance. The modified
// timestamp acts as an optimistic lock so two pollers cannot claim the same
// run.
func (r *ExecutionRepository) MarkExecutionAsScheduled(id string, engineId int64, modified time.Time) bool {
	query := `
		UPDATE workflow_executions
		SET modified = ` + nowFunc(r.clock) + `, engine_id = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND modified = ` + placeholder(3) + ` AND status IN ('pending', 'running') AND engine_id IS NULL
	`
	stringdate := formatDateInDatabase(modified)
	result, err := r.db.Exec(query, engineId, id, stringdate)
	if err != nil {
		slog.Error("Failed to mark execution as scheduled", "error", err, "id", id, "engineId", engineId, "modified", modified)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// MarkExecutionStarted flips a pending run to running exactly once.
func (r *ExecutionRepository) MarkExecutionStarted(id string) bool {
	query := `
		UPDATE workflow_executions
		SET status = 'running', started = ` + nowFunc(r.clock) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(1) + ` AND status = 'pending'
	`
	result, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("Failed to mark execution as started", "error", err, "id", id)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

func (r *ExecutionRepository) SaveExecutionContext(id string, context string) error {
	query := `
		UPDATE workflow_executions
		SET context = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, context, id)
	return err
}

// FinishExecution records the terminal outcome of a run. The status guard
// makes the transition happen at most once: a run that is already terminal is
// left untouched and false is returned.
func (r *ExecutionRepository) FinishExecution(id string, status domain.ExecutionStatus, output sql.NullString, errMsg sql.NullString) bool {
	query := `
		UPDATE workflow_executions
		SET status = ` + placeholder(1) + `, output = ` + placeholder(2) + `, error = ` + placeholder(3) + `,
		    completed = ` + nowFunc(r.clock) + `, modified = ` + nowFunc(r.clock) + `,
		    next_activation = NULL, engine_id = NULL
		WHERE id = ` + placeholder(4) + ` AND status IN ('pending', 'running')
	`
	result, err := r.db.Exec(query, string(status), output, errMsg, id)
	if err != nil {
		slog.Error("Failed to finish execution", "error", err, "id", id, "status", status)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// RequestCancel flags a non-terminal run for cooperative cancellation by
// pulling its next activation. A run currently held by an engine keeps its
// claim; the runner observes the status between nodes.
func (r *ExecutionRepository) RequestCancel(id string) bool {
	query := `
		UPDATE workflow_executions
		SET status = 'cancelled', completed = ` + nowFunc(r.clock) + `, modified = ` + nowFunc(r.clock) + `,
		    next_activation = NULL
		WHERE id = ` + placeholder(1) + ` AND status IN ('pending', 'running')
	`
	result, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("Failed to cancel execution", "error", err, "id", id)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// UpdateNextActivationSpecific parks a run until the given wakeup time and
// releases its engine claim so any instance may resume it.
func (r *ExecutionRepository) UpdateNextActivationSpecific(id string, next time.Time) error {
	query := `
		UPDATE workflow_executions
		SET next_activation = ` + placeholder(1) + `, engine_id = NULL, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, formatDateInDatabase(next), id)
	return err
}

func (r *ExecutionRepository) ClearEngineId(id string) error {
	query := `
		UPDATE workflow_executions
		SET engine_id = NULL, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(1) + `
	`
	_, err := r.db.Exec(query, id)
	return err
}

func (r *ExecutionRepository) IncrementRetryCounterAndSetNextActivation(id string, activation time.Time) error {
	query := `
		UPDATE workflow_executions
		SET engine_id = NULL, retry_count = retry_count + 1, next_activation = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, formatDateInDatabase(activation), id)
	return err
}

// FindStuckExecutions returns claimed, non-terminal runs whose engine has not
// heartbeated since the cutoff.
func (r *ExecutionRepository) FindStuckExecutions(minutesRepair string, limit int) (*[]domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE modified < ` + placeholder(1) + `
		  AND status IN ('pending', 'running')
		  AND engine_id IS NOT NULL
		  AND engine_id NOT IN (
		      SELECT id
		      FROM engine_instances
		      WHERE last_active > ` + placeholder(2) + `
		  )
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(3) + `
		`
	// minutesRepair is a string like "5" or "5 minutes"; extract leading integer minutes
	mins := 0
	fmt.Sscanf(minutesRepair, "%d", &mins)
	cutoff := r.clock.Now().UTC().Add(-time.Duration(mins) * time.Minute)
	rows, err := r.db.Query(query, formatDateInDatabase(cutoff), formatDateInDatabase(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var executions []domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	return &executions, nil
}

// ReleaseExecutionByModified frees a run abandoned by a dead engine so that a
// live poller can claim it again. Guarded by modified so a still-working
// engine keeps its claim.
func (r *ExecutionRepository) ReleaseExecutionByModified(id string, modified time.Time) bool {
	query := `
		UPDATE workflow_executions
		SET engine_id = NULL, retry_count = retry_count + 1, next_activation = ` + nowFunc(r.clock) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(1) + ` AND modified = ` + placeholder(2) + `
	`
	result, err := r.db.Exec(query, id, formatDateInDatabase(modified))
	if err != nil {
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// FindByWorkflowID returns one page of a definition's runs, most recent
// first.
func (r *ExecutionRepository) FindByWorkflowID(workflowId string, limit int, offset int) (*[]domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE workflow_id = ` + placeholder(1) + `
		ORDER BY created DESC, id DESC
		LIMIT ` + placeholder(2) + ` OFFSET ` + placeholder(3) + `
	`
	rows, err := r.db.Query(query, workflowId, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}

	return &executions, nil
}

// GetExecutionOverview returns aggregated run counts grouped by workflow and version
func (r *ExecutionRepository) GetExecutionOverview() ([]ExecutionOverviewRow, error) {
	query := `
SELECT
    workflow_id,
    version,
    SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) AS pending_count,
    SUM(CASE WHEN status = 'running'  THEN 1 ELSE 0 END) AS running_count,
    SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS success_count,
    SUM(CASE WHEN status = 'failed'  THEN 1 ELSE 0 END) AS failed_count,
    SUM(CASE WHEN status = 'cancelled'  THEN 1 ELSE 0 END) AS cancelled_count
FROM workflow_executions
GROUP BY workflow_id, version;
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ExecutionOverviewRow
	for rows.Next() {
		var row ExecutionOverviewRow
		if err := rows.Scan(&row.WorkflowID, &row.Version, &row.PendingCount, &row.RunningCount, &row.SuccessCount, &row.FailedCount, &row.CancelledCount); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

// GetTopRunning returns runs currently executing ordered by modified desc
func (r *ExecutionRepository) GetTopRunning(limit int) (*[]domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE status = 'running'
		ORDER BY modified DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var executions []domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	return &executions, nil
}

// GetNextToExecute returns upcoming runs ordered by next_activation asc
func (r *ExecutionRepository) GetNextToExecute(limit int) (*[]domain.WorkflowExecution, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE status IN ('pending','running')
		  AND next_activation IS NOT NULL
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var executions []domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	return &executions, nil
}
