package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Machines table
CREATE TABLE IF NOT EXISTS machines (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	create_date TIMESTAMP NOT NULL,
	life_time REAL NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Projection history table
CREATE TABLE IF NOT EXISTS projections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id TEXT NOT NULL UNIQUE,
	machine_id TEXT NOT NULL,
	status TEXT NOT NULL,
	health REAL NOT NULL,
	min_health REAL NOT NULL,
	elapsed_hours REAL NOT NULL,
	time_to_warning REAL,
	time_to_critical REAL,
	event_count INTEGER NOT NULL DEFAULT 0,
	reasons_json TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (machine_id) REFERENCES machines(id)
);

CREATE INDEX IF NOT EXISTS idx_projections_machine_id ON projections(machine_id);
CREATE INDEX IF NOT EXISTS idx_projections_status ON projections(status);
CREATE INDEX IF NOT EXISTS idx_projections_timestamp ON projections(timestamp DESC);

-- Latest state table (one row per machine)
CREATE TABLE IF NOT EXISTS latest_state (
	machine_id TEXT PRIMARY KEY,
	report_id TEXT NOT NULL,
	status TEXT NOT NULL,
	health REAL NOT NULL,
	min_health REAL NOT NULL,
	elapsed_hours REAL NOT NULL,
	time_to_warning REAL,
	time_to_critical REAL,
	event_count INTEGER NOT NULL DEFAULT 0,
	reasons_json TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (machine_id) REFERENCES machines(id)
);

CREATE INDEX IF NOT EXISTS idx_latest_state_status ON latest_state(status);
`
