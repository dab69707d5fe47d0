package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				created_at  TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_created ON sessions (created_at);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				msg_id      TEXT NOT NULL,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				seq         INTEGER NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL,
				agent       TEXT NOT NULL DEFAULT '',
				intent      TEXT NOT NULL DEFAULT '',
				tool_calls  TEXT
			);

			CREATE INDEX idx_messages_session ON messages (session_id, seq);

			CREATE TABLE store_meta (
				key    TEXT PRIMARY KEY,
				value  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "create credentials",
		SQL: `
			CREATE TABLE credentials (
				id          INTEGER PRIMARY KEY CHECK (id = 1),
				token       TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "create message search with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				content='messages',
				content_rowid='id'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content)
				VALUES (new.id, new.content);
			END;

			CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
			END;

			CREATE TRIGGER messages_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
				INSERT INTO messages_fts(rowid, content)
				VALUES (new.id, new.content);
			END;
		`,
	},
}
