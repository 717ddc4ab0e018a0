package repository

import (
	"database/sql"

	"github.com/driftflow/driftflow/internal/config"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	domain "github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// DefinitionRepository stores the versioned workflow definitions. A
// definition keeps one id across versions; rows are keyed (id, version).
type DefinitionRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewDefinitionRepository(db *sql.DB, clock core.Clock) *DefinitionRepository {
	return &DefinitionRepository{db: db, clock: clock}
}

const DEFINITION_COLUMNS = ` id, name, description, version, trigger_type, schedule, format,
		       content, published, team, created_by, created, updated `

func scanDefinition(row interface{ Scan(...any) error }) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.Version,
		&def.Trigger,
		&def.Schedule,
		&def.Format,
		&def.Content,
		&def.Published,
		&def.Team,
		&def.CreatedBy,
		&def.Created,
		&def.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Save inserts a new definition version or updates an existing draft in
// place. Published rows are never updated here; the service refuses to save
// over them before calling.
func (r *DefinitionRepository) Save(def *domain.WorkflowDefinition) error {
	query := ""
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	if db == config.DATABASE_TYPE_POSTGRES || db == config.DATABASE_TYPE_SQLLITE {
		query = `
		INSERT INTO workflow_definitions (id, name, description, version, trigger_type, schedule, format, content, published, team, created_by, created, updated)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `, ` + placeholder(9) + `, ` + placeholder(10) + `, ` + placeholder(11) + `, ` + placeholder(12) + `, ` + placeholder(13) + `)
		ON CONFLICT (id, version)
		DO UPDATE SET description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			schedule = EXCLUDED.schedule,
			format = EXCLUDED.format,
			content = EXCLUDED.content,
			updated = EXCLUDED.updated
	`
	} else if db == config.DATABASE_TYPE_MYSQL {
		query = `
		INSERT INTO workflow_definitions (id, name, description, version, trigger_type, schedule, format, content, published, team, created_by, created, updated)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `, ` + placeholder(9) + `, ` + placeholder(10) + `, ` + placeholder(11) + `, ` + placeholder(12) + `, ` + placeholder(13) + `)
		ON DUPLICATE KEY UPDATE description = VALUES(description),
			trigger_type = VALUES(trigger_type),
			schedule = VALUES(schedule),
			format = VALUES(format),
			content = VALUES(content),
			updated = VALUES(updated)
	`
	} else {
		panic("Unknown database type trying to save workflow definition")
	}

	_, err := r.db.Exec(query, def.ID, def.Name, def.Description, def.Version, def.Trigger, def.Schedule, def.Format,
		def.Content, def.Published, def.Team, def.CreatedBy, formatDateInDatabase(def.Created), formatDateInDatabase(def.Updated))
	return err
}

// FindByIDAndVersion fetches one exact definition version.
func (r *DefinitionRepository) FindByIDAndVersion(id string, version int) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions WHERE id = ` + placeholder(1) + ` AND version = ` + placeholder(2) + `
	`
	return scanDefinition(r.db.QueryRow(query, id, version))
}

// FindLatestByID fetches the newest version of a definition, draft or not.
func (r *DefinitionRepository) FindLatestByID(id string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions WHERE id = ` + placeholder(1) + `
		ORDER BY version DESC
		LIMIT 1
	`
	return scanDefinition(r.db.QueryRow(query, id))
}

// FindLatestPublishedByID fetches the newest published version of a
// definition. Runs are always started from this row.
func (r *DefinitionRepository) FindLatestPublishedByID(id string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions
		WHERE id = ` + placeholder(1) + ` AND published = ` + placeholder(2) + `
		ORDER BY version DESC
		LIMIT 1
	`
	return scanDefinition(r.db.QueryRow(query, id, true))
}

// FindByName fetches the newest version under a name.
func (r *DefinitionRepository) FindByName(name string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions WHERE name = ` + placeholder(1) + `
		ORDER BY version DESC
		LIMIT 1
	`
	return scanDefinition(r.db.QueryRow(query, name))
}

// FindAll returns the newest version of every definition.
func (r *DefinitionRepository) FindAll() (*[]domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions d
		JOIN (
		    SELECT id AS mid, MAX(version) AS mversion
		    FROM workflow_definitions
		    GROUP BY id
		) m ON d.id = m.mid AND d.version = m.mversion
		ORDER BY name
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// FindPublishedScheduled returns the newest published version of every
// definition that runs on a cron schedule.
func (r *DefinitionRepository) FindPublishedScheduled() (*[]domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions d
		JOIN (
		    SELECT id AS mid, MAX(version) AS mversion
		    FROM workflow_definitions
		    WHERE published = ` + placeholder(1) + `
		    GROUP BY id
		) m ON d.id = m.mid AND d.version = m.mversion
		WHERE d.trigger_type = 'scheduled' AND d.schedule IS NOT NULL
		ORDER BY name
	`
	rows, err := r.db.Query(query, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// MarkPublished freezes one version. Returns false when the version was
// already published, so publish happens at most once.
func (r *DefinitionRepository) MarkPublished(id string, version int) bool {
	query := `
		UPDATE workflow_definitions
		SET published = ` + placeholder(1) + `, updated = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + ` AND version = ` + placeholder(3) + ` AND published = ` + placeholder(4) + `
	`
	result, err := r.db.Exec(query, true, id, version, false)
	if err != nil {
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}
