package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/storage"
)

// Store implements HistoryStorage using SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite storage with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// StoreMachine upserts a machine record
func (s *Store) StoreMachine(m machine.Machine) error {
	query := `
		INSERT INTO machines (id, name, type, create_date, life_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			create_date = excluded.create_date,
			life_time = excluded.life_time,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query, m.ID, m.Name, m.Type, m.CreateDate.UTC(), m.LifeTime)
	if err != nil {
		return fmt.Errorf("failed to store machine: %w", err)
	}
	return nil
}

// StoreReport appends a report to the projection history
func (s *Store) StoreReport(r *projector.Report) error {
	reasonsJSON, err := marshalReasons(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO projections (
			report_id, machine_id, status, health, min_health, elapsed_hours,
			time_to_warning, time_to_critical, event_count, reasons_json, timestamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		r.ID,
		r.Machine.ID,
		string(r.Status()),
		r.Assessment.Health,
		r.Projection.MinHealth(),
		r.ElapsedHours,
		nullFloat(r.TimeToWarning),
		nullFloat(r.TimeToCritical),
		r.EventCount,
		reasonsJSON,
		r.GeneratedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	return nil
}

// UpdateLatestState replaces the latest state for the report's machine
func (s *Store) UpdateLatestState(r *projector.Report) error {
	reasonsJSON, err := marshalReasons(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO latest_state (
			machine_id, report_id, status, health, min_health, elapsed_hours,
			time_to_warning, time_to_critical, event_count, reasons_json, timestamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(machine_id) DO UPDATE SET
			report_id = excluded.report_id,
			status = excluded.status,
			health = excluded.health,
			min_health = excluded.min_health,
			elapsed_hours = excluded.elapsed_hours,
			time_to_warning = excluded.time_to_warning,
			time_to_critical = excluded.time_to_critical,
			event_count = excluded.event_count,
			reasons_json = excluded.reasons_json,
			timestamp = excluded.timestamp,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.Exec(query,
		r.Machine.ID,
		r.ID,
		string(r.Status()),
		r.Assessment.Health,
		r.Projection.MinHealth(),
		r.ElapsedHours,
		nullFloat(r.TimeToWarning),
		nullFloat(r.TimeToCritical),
		r.EventCount,
		reasonsJSON,
		r.GeneratedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update latest state: %w", err)
	}
	return nil
}

// QueryHistory retrieves history records with optional filtering, newest first
func (s *Store) QueryHistory(filter storage.HistoryFilter) ([]storage.HistoryRecord, error) {
	query := `
		SELECT p.id, p.report_id, p.machine_id, m.name, p.status, p.health, p.min_health,
		       p.elapsed_hours, p.time_to_warning, p.time_to_critical, p.event_count,
		       p.reasons_json, p.timestamp, p.created_at
		FROM projections p
		JOIN machines m ON m.id = p.machine_id
		WHERE 1=1
	`
	args := []any{}

	if filter.MachineID != "" {
		query += " AND p.machine_id = ?"
		args = append(args, filter.MachineID)
	}

	if filter.Status != "" {
		query += " AND p.status = ?"
		args = append(args, filter.Status)
	}

	if filter.StartTime != nil {
		query += " AND p.timestamp >= ?"
		args = append(args, filter.StartTime.UTC())
	}

	if filter.EndTime != nil {
		query += " AND p.timestamp <= ?"
		args = append(args, filter.EndTime.UTC())
	}

	query += " ORDER BY p.timestamp DESC, p.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100" // Default limit
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []storage.HistoryRecord
	for rows.Next() {
		var record storage.HistoryRecord
		var reasonsJSON string
		var toWarning, toCritical sql.NullFloat64

		err := rows.Scan(
			&record.ID,
			&record.ReportID,
			&record.MachineID,
			&record.MachineName,
			&record.Status,
			&record.Health,
			&record.MinHealth,
			&record.ElapsedHours,
			&toWarning,
			&toCritical,
			&record.EventCount,
			&reasonsJSON,
			&record.Timestamp,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(reasonsJSON), &record.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
		record.TimeToWarning = floatPtr(toWarning)
		record.TimeToCritical = floatPtr(toCritical)

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// GetLatestState retrieves the latest state for a machine
func (s *Store) GetLatestState(machineID string) (*storage.LatestState, error) {
	query := `
		SELECT machine_id, report_id, status, health, min_health, elapsed_hours,
		       time_to_warning, time_to_critical, event_count, reasons_json, timestamp, updated_at
		FROM latest_state
		WHERE machine_id = ?
	`

	var state storage.LatestState
	var reasonsJSON string
	var toWarning, toCritical sql.NullFloat64

	err := s.db.QueryRow(query, machineID).Scan(
		&state.MachineID,
		&state.ReportID,
		&state.Status,
		&state.Health,
		&state.MinHealth,
		&state.ElapsedHours,
		&toWarning,
		&toCritical,
		&state.EventCount,
		&reasonsJSON,
		&state.Timestamp,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest state: %w", err)
	}

	if err := json.Unmarshal([]byte(reasonsJSON), &state.Reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	state.TimeToWarning = floatPtr(toWarning)
	state.TimeToCritical = floatPtr(toCritical)

	return &state, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalReasons(r *projector.Report) (string, error) {
	if r.Assessment == nil || r.Projection == nil {
		return "", fmt.Errorf("report %s is incomplete", r.ID)
	}
	reasons := r.Assessment.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reasons: %w", err)
	}
	return string(data), nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
