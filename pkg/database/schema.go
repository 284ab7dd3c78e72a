package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"exercises":         "Exercise definitions",
		"role_assignments":  "Per-participant role records",
		"buffer_snapshots":  "Persisted authoritative buffers",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	exerciseColumns := map[string]string{
		"id":           "TEXT",
		"title":        "TEXT",
		"instructions": "TEXT",
		"code":         "TEXT",
		"solution":     "TEXT",
	}
	if err := v.validateColumns("exercises", exerciseColumns); err != nil {
		return fmt.Errorf("exercises table structure invalid: %w", err)
	}

	assignmentColumns := map[string]string{
		"exercise_id":    "TEXT",
		"participant_id": "TEXT",
		"role":           "TEXT",
		"updated_at":     "DATETIME",
	}
	if err := v.validateColumns("role_assignments", assignmentColumns); err != nil {
		return fmt.Errorf("role_assignments table structure invalid: %w", err)
	}

	snapshotColumns := map[string]string{
		"exercise_id": "TEXT",
		"content":     "TEXT",
		"updated_at":  "DATETIME",
	}
	if err := v.validateColumns("buffer_snapshots", snapshotColumns); err != nil {
		return fmt.Errorf("buffer_snapshots table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_exercises_title":                "Catalog ordering",
		"idx_role_assignments_exercise_role": "Mentor exclusivity lookups",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
// ARCHITECTURAL DISCOVERY: Constraint validation ensures data integrity rules
// are enforced at the database level
func (v *SchemaValidator) ValidateConstraints() error {
	// role_assignments.exercise_id -> exercises.id
	_, err := v.db.Exec(`
		INSERT INTO role_assignments (exercise_id, participant_id, role)
		VALUES ('nonexistent', 'probe', 'mentor')
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM role_assignments WHERE exercise_id = 'nonexistent'")
		return fmt.Errorf("foreign key constraint not enforced: role_assignments.exercise_id")
	}

	_, err = v.db.Exec(`INSERT INTO exercises (id, title) VALUES ('constraint-probe', 'Probe')`)
	if err != nil {
		return fmt.Errorf("failed to create probe exercise: %w", err)
	}
	defer func() {
		_, _ = v.db.Exec("DELETE FROM exercises WHERE id = 'constraint-probe'")
	}()

	_, err = v.db.Exec(`
		INSERT INTO role_assignments (exercise_id, participant_id, role)
		VALUES ('constraint-probe', 'probe', 'admin')
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM role_assignments WHERE exercise_id = 'constraint-probe'")
		return fmt.Errorf("check constraint not enforced: role validation")
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
