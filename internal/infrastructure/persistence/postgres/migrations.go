package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_directory_and_activity", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_point_transactions", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_levels_and_badges", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_ranking_entries", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: DIRECTORY AND ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,
    role VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('student', 'teacher', 'admin'))
);

CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

CREATE TABLE IF NOT EXISTS plays (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    game_id TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    played_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_plays_student_played ON plays(student_id, played_at DESC);

CREATE TABLE IF NOT EXISTS usage_logs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    activity_id TEXT NOT NULL,
    minutes INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    logged_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_minutes CHECK (minutes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_student_logged ON usage_logs(student_id, logged_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS usage_logs;
DROP TABLE IF EXISTS plays;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: POINT LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only. Totals are always SUM(amount).
CREATE TABLE IF NOT EXISTS point_transactions (
    id UUID PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    reason TEXT NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT nonzero_amount CHECK (amount <> 0),
    CONSTRAINT reason_present CHECK (length(btrim(reason)) > 0)
);

CREATE INDEX IF NOT EXISTS idx_point_transactions_student ON point_transactions(student_id, occurred_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS point_transactions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: LEVELS AND BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS levels (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    points_required BIGINT NOT NULL,
    difficulty_tag VARCHAR(50) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT levels_points_required_key UNIQUE (points_required),
    CONSTRAINT valid_points_required CHECK (points_required >= 0)
);

CREATE TABLE IF NOT EXISTS student_levels (
    student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    level_id UUID NOT NULL REFERENCES levels(id) ON DELETE CASCADE,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    source VARCHAR(10) NOT NULL,

    PRIMARY KEY (student_id, level_id),
    CONSTRAINT valid_level_source CHECK (source IN ('auto', 'manual'))
);

CREATE INDEX IF NOT EXISTS idx_student_levels_level ON student_levels(level_id);

CREATE TABLE IF NOT EXISTS badges (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    criterion TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS badges_name_key ON badges(lower(name));

CREATE TABLE IF NOT EXISTS student_badges (
    student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    badge_id UUID NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    source VARCHAR(10) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',

    PRIMARY KEY (student_id, badge_id),
    CONSTRAINT valid_badge_source CHECK (source IN ('auto', 'manual'))
);

CREATE INDEX IF NOT EXISTS idx_student_badges_badge ON student_badges(badge_id);
`

const migration003Down = `
DROP TABLE IF EXISTS student_badges;
DROP TABLE IF EXISTS badges;
DROP TABLE IF EXISTS student_levels;
DROP TABLE IF EXISTS levels;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: RANKING ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Cache only; always re-derivable from point_transactions.
CREATE TABLE IF NOT EXISTS ranking_entries (
    student_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    total_points BIGINT NOT NULL,
    computed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_position CHECK (position >= 1)
);

CREATE INDEX IF NOT EXISTS idx_ranking_entries_position ON ranking_entries(position);
`

const migration004Down = `
DROP TABLE IF EXISTS ranking_entries;
`
