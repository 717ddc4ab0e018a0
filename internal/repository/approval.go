package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// ApprovalRepository persists approval gates. The approver lists are stored
// as JSON arrays in text columns so the same schema works on all three
// databases.
type ApprovalRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewApprovalRepository(db *sql.DB, clock core.Clock) *ApprovalRepository {
	return &ApprovalRepository{db: db, clock: clock}
}

const APPROVAL_COLUMNS = ` id, execution_id, node_id, status, approvers, min_approvals,
		       approved_by, reason, on_timeout, requested_at, deadline, resolved_at `

func marshalNames(names []string) string {
	if names == nil {
		names = []string{}
	}
	b, err := codec.Marshal(names)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalNames(raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	if err := codec.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}
	return names
}

func (r *ApprovalRepository) scanApproval(row interface{ Scan(...any) error }) (*domain.WorkflowApproval, error) {
	var a domain.WorkflowApproval
	var approvers, approvedBy string
	err := row.Scan(
		&a.ID,
		&a.ExecutionID,
		&a.NodeID,
		&a.Status,
		&approvers,
		&a.MinApprovals,
		&approvedBy,
		&a.Reason,
		&a.OnTimeout,
		&a.RequestedAt,
		&a.Deadline,
		&a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Approvers = unmarshalNames(approvers)
	a.ApprovedBy = unmarshalNames(approvedBy)
	return &a, nil
}

func (r *ApprovalRepository) Save(a *domain.WorkflowApproval) (int64, error) {
	base := `
		INSERT INTO workflow_approvals (
			execution_id, node_id, status, approvers, min_approvals,
			approved_by, reason, on_timeout, requested_at, deadline, resolved_at
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `,
			` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `, ` + placeholder(9) + `, ` + placeholder(10) + `, ` + placeholder(11) + `
		)`
	vals := []interface{}{
		a.ExecutionID,
		a.NodeID,
		a.Status,
		marshalNames(a.Approvers),
		a.MinApprovals,
		marshalNames(a.ApprovedBy),
		a.Reason,
		a.OnTimeout,
		formatDateInDatabase(a.RequestedAt),
		formatDateInDatabase(a.Deadline),
		formatDateInDatabaseNull(a.ResolvedAt),
	}
	var err error
	if supportsReturning() {
		query := base + " RETURNING id"
		err = r.db.QueryRow(query, vals...).Scan(&a.ID)
	} else {
		res, e := r.db.Exec(base, vals...)
		if e != nil {
			err = e
		} else {
			id, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				a.ID = id
			}
		}
	}

	if err != nil {
		slog.Error("Failed to save approval", "error", err, "executionId", a.ExecutionID, "nodeId", a.NodeID)
	}

	return a.ID, err
}

func (r *ApprovalRepository) FindByID(id int64) (*domain.WorkflowApproval, error) {
	query := `
		SELECT ` + APPROVAL_COLUMNS + `
		FROM workflow_approvals
		WHERE id = ` + placeholder(1) + `
	`
	return r.scanApproval(r.db.QueryRow(query, id))
}

// FindOpenByExecutionAndNode returns the pending gate for one node of one
// run, or sql.ErrNoRows when none is waiting.
func (r *ApprovalRepository) FindOpenByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	query := `
		SELECT ` + APPROVAL_COLUMNS + `
		FROM workflow_approvals
		WHERE execution_id = ` + placeholder(1) + ` AND node_id = ` + placeholder(2) + ` AND status = 'pending'
		ORDER BY id DESC
		LIMIT 1
	`
	return r.scanApproval(r.db.QueryRow(query, executionID, nodeID))
}

// FindLatestByExecutionAndNode returns the most recent gate for one node of
// one run regardless of status, or sql.ErrNoRows when the node never opened
// one.
func (r *ApprovalRepository) FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	query := `
		SELECT ` + APPROVAL_COLUMNS + `
		FROM workflow_approvals
		WHERE execution_id = ` + placeholder(1) + ` AND node_id = ` + placeholder(2) + `
		ORDER BY id DESC
		LIMIT 1
	`
	return r.scanApproval(r.db.QueryRow(query, executionID, nodeID))
}

func (r *ApprovalRepository) FindAllByExecutionID(executionID string) (*[]domain.WorkflowApproval, error) {
	query := `
		SELECT ` + APPROVAL_COLUMNS + `
		FROM workflow_approvals
		WHERE execution_id = ` + placeholder(1) + `
		ORDER BY id ASC
	`
	rows, err := r.db.Query(query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.WorkflowApproval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *a)
	}
	return &approvals, nil
}

// FindPendingForApprover returns open gates naming the given approver. The
// membership test matches the quoted name inside the stored JSON array, which
// works identically on all three databases.
func (r *ApprovalRepository) FindPendingForApprover(approver string) (*[]domain.WorkflowApproval, error) {
	query := `
		SELECT ` + APPROVAL_COLUMNS + `
		FROM workflow_approvals
		WHERE status = 'pending' AND approvers LIKE ` + placeholder(1) + `
		ORDER BY deadline ASC
	`
	rows, err := r.db.Query(query, `%"`+approver+`"%`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.WorkflowApproval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *a)
	}
	return &approvals, nil
}

// RecordDecision replaces the approved_by list and optionally resolves the
// gate. The previous list acts as an optimistic lock so two approvers
// deciding at once cannot drop each other's entry; callers re-read and retry
// on false.
func (r *ApprovalRepository) RecordDecision(id int64, status domain.ApprovalStatus, approvedBy []string, reason sql.NullString, prevApprovedBy []string) bool {
	resolved := "resolved_at"
	if status != domain.ApprovalPending {
		resolved = nowFunc(r.clock)
	}
	query := `
		UPDATE workflow_approvals
		SET status = ` + placeholder(1) + `, approved_by = ` + placeholder(2) + `, reason = ` + placeholder(3) + `, resolved_at = ` + resolved + `
		WHERE id = ` + placeholder(4) + ` AND status = 'pending' AND approved_by = ` + placeholder(5) + `
	`
	result, err := r.db.Exec(query, string(status), marshalNames(approvedBy), reason, id, marshalNames(prevApprovedBy))
	if err != nil {
		slog.Error("Failed to record approval decision", "error", err, "id", id, "status", status)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// ResolveConditional closes a pending gate without touching the approver
// list. Used by the timeout policies.
func (r *ApprovalRepository) ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool {
	query := `
		UPDATE workflow_approvals
		SET status = ` + placeholder(1) + `, reason = ` + placeholder(2) + `, resolved_at = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(3) + ` AND status = 'pending'
	`
	result, err := r.db.Exec(query, string(status), reason, id)
	if err != nil {
		slog.Error("Failed to resolve approval", "error", err, "id", id, "status", status)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// ExtendDeadline pushes the deadline of a still-pending gate.
func (r *ApprovalRepository) ExtendDeadline(id int64, deadline time.Time) error {
	query := `
		UPDATE workflow_approvals
		SET deadline = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND status = 'pending'
	`
	_, err := r.db.Exec(query, formatDateInDatabase(deadline), id)
	return err
}
