package store

// Schema DDL for the local state database.
const (
	createSession = `CREATE TABLE IF NOT EXISTS session (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    user_id INTEGER NOT NULL,
    token TEXT NOT NULL,
    created TEXT NOT NULL,
    last_refresh TEXT NOT NULL
);`

	createPreferences = `CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createSession,
	createPreferences,
}
