package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations run in order; applied versions are recorded in schema_migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create tool state",
		SQL: `
			CREATE TABLE tool_state (
				source      TEXT NOT NULL,
				name        TEXT NOT NULL,
				enabled     INTEGER NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (source, name)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create call log",
		SQL: `
			CREATE TABLE call_log (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				call_id       TEXT NOT NULL,
				event         TEXT NOT NULL,
				caller_id     INTEGER NOT NULL,
				caller_login  TEXT NOT NULL DEFAULT '',
				project_id    INTEGER,
				detail        TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_call_log_call ON call_log (call_id, id);
		`,
	},
}
