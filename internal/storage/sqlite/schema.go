package sqlite

// schema creates the target/issue/comment tables documented in spec.md
// §3/§6. CTT ships a single schema version — there is no migration
// ladder, unlike the teacher's storage/sqlite/migrations/0NN_*.go chain,
// because spec.md places schema migration and bootstrap out of scope and
// CTT has no prior on-disk format to migrate from.
const schema = `
CREATE TABLE IF NOT EXISTS target (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	name   TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id   INTEGER NOT NULL REFERENCES target(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL,
	assigned_to TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	to_offline  TEXT,
	status      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issue_target_id ON issue(target_id);
CREATE INDEX IF NOT EXISTS idx_issue_status ON issue(status);

CREATE TABLE IF NOT EXISTS comment (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id   INTEGER NOT NULL REFERENCES issue(id) ON DELETE CASCADE,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	comment    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comment_issue_id ON comment(issue_id);
`
