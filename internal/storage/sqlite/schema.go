// ABOUTME: SQLite database schema for the relay store
// ABOUTME: Creates all tables and indexes for personas, settings, connections
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Pseudonymous identities, one owner each. Soft-deleted via active = 0.
CREATE TABLE IF NOT EXISTS personas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    temp INTEGER NOT NULL DEFAULT 0,
    stock INTEGER NOT NULL DEFAULT 0,
    last_used INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1
);

-- Per-user privacy settings, created lazily with default-false flags.
CREATE TABLE IF NOT EXISTS settings (
    user_id INTEGER PRIMARY KEY,
    gpt INTEGER NOT NULL DEFAULT 0,
    lowercase INTEGER NOT NULL DEFAULT 0,
    punctuation INTEGER NOT NULL DEFAULT 0,
    notify_comments INTEGER NOT NULL DEFAULT 0,
    notify_replies INTEGER NOT NULL DEFAULT 0,
    dms INTEGER NOT NULL DEFAULT 0,
    persona_dms INTEGER NOT NULL DEFAULT 0
);

-- Anonymous links between two endpoints. Degree <= 1 per endpoint is
-- enforced by the connection graph under its serialization lock, not here;
-- channels may legitimately hold several edges.
CREATE TABLE IF NOT EXISTS connections (
    a_kind INTEGER NOT NULL,
    a_id INTEGER NOT NULL,
    b_kind INTEGER NOT NULL,
    b_id INTEGER NOT NULL
);

-- Which persona a user is currently acting as. Absence means the user acts
-- as themself. May dangle if the persona is deactivated; readers join on
-- active personas so a dangling row reads as absent.
CREATE TABLE IF NOT EXISTS selected_personas (
    user_id INTEGER PRIMARY KEY,
    persona_id INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_personas_user ON personas(user_id);

-- Name uniqueness among active personas is enforced here, not by the
-- check in the registry: the check-then-insert is not atomic, so racing
-- creates rely on this index to leave exactly one winner. Likewise at most
-- one active stock persona per user.
CREATE UNIQUE INDEX IF NOT EXISTS idx_personas_name ON personas(name) WHERE active;
CREATE UNIQUE INDEX IF NOT EXISTS idx_personas_stock ON personas(user_id) WHERE active AND stock;
CREATE INDEX IF NOT EXISTS idx_connections_a ON connections(a_kind, a_id);
CREATE INDEX IF NOT EXISTS idx_connections_b ON connections(b_kind, b_id);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1
