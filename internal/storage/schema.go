package storage

// Base schema as the very first deployment created it. Everything the
// current code relies on (sources.status, text statuses, aliases) is
// added by the migration chain so that databases from any earlier run
// upgrade in place.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sources (
    path TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS tags (
    question INT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY(question, tag)
);
CREATE TABLE IF NOT EXISTS views (
    question INT NOT NULL,
    viewcount INT NOT NULL,
    date TEXT NOT NULL,
    PRIMARY KEY(date, question)
);
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
INSERT OR IGNORE INTO meta(key, value) VALUES ('version', '0');
`

// schemaVersion is the version the migration chain converges to.
const schemaVersion = 3

// migrations[i] upgrades a version-i database to version i+1. Each step
// runs in its own transaction together with the version bump, so a crash
// leaves the database at a well-defined version.
var migrations = []string{
	// v0 -> v1: track per-source processing status.
	`
	ALTER TABLE sources ADD COLUMN status INT DEFAULT 1;
	UPDATE meta SET value='1' WHERE key='version';
	`,

	// v1 -> v2: numeric statuses become the classification strings the
	// extraction engine produces.
	`
	DROP TABLE IF EXISTS sources_v2;
	CREATE TABLE sources_v2 (
	    path TEXT PRIMARY KEY,
	    status TEXT NOT NULL
	);
	INSERT INTO sources_v2(path, status)
	    SELECT path, CASE status
	                    WHEN 0 THEN ''
	                    WHEN 1 THEN 'OK'
	                    WHEN 2 THEN 'ERROR'
	                    ELSE 'UNKNOWN' END
	        FROM sources;
	DROP TABLE sources;
	ALTER TABLE sources_v2 RENAME TO sources;
	UPDATE meta SET value='2' WHERE key='version';
	`,

	// v2 -> v3: alias relation for redirect-following; a lookup follows
	// at most one hop.
	`
	CREATE TABLE IF NOT EXISTS aliases (
	    path TEXT PRIMARY KEY,
	    target TEXT NOT NULL
	);
	UPDATE meta SET value='3' WHERE key='version';
	`,
}
