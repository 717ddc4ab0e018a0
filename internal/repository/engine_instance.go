package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// EngineInstanceRepository provides persistence for the engine_instances
// table. Each running engine registers one row and heartbeats last_active;
// the repair sweep uses the heartbeats to spot dead instances.
type EngineInstanceRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewEngineInstanceRepository(db *sql.DB, clock core.Clock) *EngineInstanceRepository {
	return &EngineInstanceRepository{db: db, clock: clock}
}

// Save inserts a new engine instance row and returns its ID.
func (r *EngineInstanceRepository) Save(e *domain.EngineInstance) (int64, error) {
	var started time.Time = e.Started
	if started.IsZero() {
		started = r.clock.Now()
	}
	var lastActive time.Time = e.LastActive
	if lastActive.IsZero() {
		lastActive = started
	}
	vals := []interface{}{e.Name, formatDateInDatabase(started), formatDateInDatabase(lastActive)}
	pps := []string{placeholder(1), placeholder(2), placeholder(3)}
	base := `INSERT INTO engine_instances (name, started, last_active) VALUES (` + strings.Join(pps, ", ") + `)`
	if supportsReturning() {
		query := base + " RETURNING id"
		if err := r.db.QueryRow(query, vals...).Scan(&e.ID); err != nil {
			return 0, err
		}
	} else {
		res, err := r.db.Exec(base, vals...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		e.ID = id
	}
	e.Started = started
	e.LastActive = lastActive
	return e.ID, nil
}

// UpdateLastActive sets last_active for the engine instance id to the provided timestamp.
func (r *EngineInstanceRepository) UpdateLastActive(id int64, ts time.Time) error {
	query := `UPDATE engine_instances SET last_active = ` + placeholder(1) + ` WHERE id = ` + placeholder(2) + ``
	_, err := r.db.Exec(query, formatDateInDatabase(ts), id)
	return err
}

func (r *EngineInstanceRepository) GetInstancesByLastActive(limit int) ([]*domain.EngineInstance, error) {
	query := `
		SELECT id, name, started, last_active
		FROM engine_instances
		ORDER BY last_active DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*domain.EngineInstance
	for rows.Next() {
		var e domain.EngineInstance
		if err := rows.Scan(&e.ID, &e.Name, &e.Started, &e.LastActive); err != nil {
			return nil, err
		}
		instances = append(instances, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}
