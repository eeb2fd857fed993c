// CLAUDE:SUMMARY Applies the jobs table schema with status and owner indexes.
package jobstore

import "database/sql"

// Schema is the complete job-record schema. Timestamps are unix milliseconds.
const Schema = `
-- Jobs: one row per submitted document, the single source of truth
-- for pipeline state.
CREATE TABLE IF NOT EXISTS jobs (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    filename        TEXT NOT NULL,
    format          TEXT NOT NULL,
    size_bytes      INTEGER NOT NULL,
    blob_key        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'received',
    extracted_text  TEXT NOT NULL DEFAULT '',
    page_count      INTEGER NOT NULL DEFAULT 0,
    word_count      INTEGER NOT NULL DEFAULT 0,
    result_json     TEXT NOT NULL DEFAULT '',
    failure_code    TEXT NOT NULL DEFAULT '',
    failure_message TEXT NOT NULL DEFAULT '',
    attempts        INTEGER NOT NULL DEFAULT 1,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id, created_at DESC);
`

// ApplySchema creates the jobs table and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
