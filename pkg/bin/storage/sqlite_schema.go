package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the bin database. Timestamps are stored as Unix
// nanoseconds so both SQLite drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS bins (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    public_code TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    max_requests INTEGER NOT NULL CHECK (max_requests > 0),
    request_count INTEGER NOT NULL DEFAULT 0,
    CHECK (request_count >= 0 AND request_count <= max_requests),
    CHECK (expires_at > created_at)
);

CREATE TABLE IF NOT EXISTS captured_requests (
    id TEXT PRIMARY KEY,
    bin_id INTEGER NOT NULL REFERENCES bins(id) ON DELETE CASCADE,
    method TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    headers TEXT NOT NULL DEFAULT '{}',
    query_params TEXT NOT NULL DEFAULT '{}',
    body TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bins_expires_at ON bins(expires_at);
CREATE INDEX IF NOT EXISTS idx_captured_requests_bin_time ON captured_requests(bin_id, timestamp DESC);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, ?)
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const (
	insertBinSQL = `
		INSERT INTO bins (public_code, created_at, expires_at, max_requests, request_count)
		VALUES (?, ?, ?, ?, ?)`

	selectBinByCodeSQL = `
		SELECT id, public_code, created_at, expires_at, max_requests, request_count
		FROM bins WHERE public_code = ?`

	codeExistsSQL = `SELECT EXISTS(SELECT 1 FROM bins WHERE public_code = ?)`

	reserveSlotSQL = `
		UPDATE bins SET request_count = request_count + 1
		WHERE id = ? AND request_count < max_requests`

	deleteRequestsByBinSQL = `DELETE FROM captured_requests WHERE bin_id = ?`

	deleteBinSQL = `DELETE FROM bins WHERE id = ?`

	insertRequestSQL = `
		INSERT INTO captured_requests (id, bin_id, method, path, headers, query_params, body, ip_address, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRequestsSQL = `
		SELECT id, bin_id, method, path, headers, query_params, body, ip_address, timestamp
		FROM captured_requests WHERE bin_id = ?
		ORDER BY timestamp DESC, rowid DESC`

	selectRequestSQL = `
		SELECT id, bin_id, method, path, headers, query_params, body, ip_address, timestamp
		FROM captured_requests WHERE bin_id = ? AND id = ?`

	countRequestsSQL = `SELECT COUNT(*) FROM captured_requests WHERE bin_id = ?`

	selectExpiredSQL = `
		SELECT id, public_code, created_at, expires_at, max_requests, request_count
		FROM bins WHERE expires_at <= ?
		ORDER BY expires_at ASC`

	statsSQL = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM captured_requests)
		FROM bins`
)
