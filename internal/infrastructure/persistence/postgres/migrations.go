// Package postgres implements the PostgreSQL persistence layer for EduStake.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROFILES AND LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create profiles and ledger_entries
-- Version: 001

CREATE TABLE IF NOT EXISTS profiles (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    wallet_address VARCHAR(42) NOT NULL UNIQUE,
    role VARCHAR(10) NOT NULL,
    username VARCHAR(50) NOT NULL DEFAULT '',
    bio TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    reputation DECIMAL(5,2) NOT NULL DEFAULT 50.00,
    total_tasks_created INTEGER NOT NULL DEFAULT 0,
    total_tasks_completed INTEGER NOT NULL DEFAULT 0,
    total_tasks_attempted INTEGER NOT NULL DEFAULT 0,
    token_balance BIGINT NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('teacher', 'student', 'both')),
    CONSTRAINT valid_reputation CHECK (reputation >= 0 AND reputation <= 100),
    CONSTRAINT completed_within_attempted CHECK (total_tasks_completed <= total_tasks_attempted)
);

CREATE INDEX IF NOT EXISTS idx_profiles_wallet ON profiles(wallet_address);
CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles(role) WHERE active;
CREATE INDEX IF NOT EXISTS idx_profiles_reputation ON profiles(reputation DESC);

-- Token movements. Amounts are stored as positive magnitudes; the type
-- decides the sign (stake debits, everything else credits).
CREATE TABLE IF NOT EXISTS ledger_entries (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES profiles(id),
    task_id UUID,
    enrollment_id UUID,
    entry_type VARCHAR(10) NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'confirmed',
    amount BIGINT NOT NULL,
    memo TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_entry_type CHECK (entry_type IN ('stake', 'refund', 'reward', 'penalty')),
    CONSTRAINT valid_entry_status CHECK (status IN ('pending', 'confirmed', 'failed')),
    CONSTRAINT positive_amount CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_enrollment ON ledger_entries(enrollment_id) WHERE enrollment_id IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS ledger_entries;
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: TASKS AND ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create tasks and enrollments
-- Version: 002

CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    teacher_id UUID NOT NULL REFERENCES profiles(id),
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    difficulty VARCHAR(15) NOT NULL,
    status VARCHAR(15) NOT NULL DEFAULT 'active',
    reward_amount BIGINT NOT NULL,
    stake_required BIGINT NOT NULL,
    max_students INTEGER NOT NULL,
    current_students INTEGER NOT NULL DEFAULT 0,
    time_limit_minutes INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMP WITH TIME ZONE,
    success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_difficulty CHECK (difficulty IN ('beginner', 'intermediate', 'advanced')),
    CONSTRAINT valid_task_status CHECK (status IN ('active', 'completed', 'cancelled', 'expired')),
    CONSTRAINT positive_reward CHECK (reward_amount > 0),
    CONSTRAINT positive_stake CHECK (stake_required > 0),
    CONSTRAINT valid_capacity CHECK (max_students > 0),
    CONSTRAINT seats_within_capacity CHECK (current_students >= 0 AND current_students <= max_students)
);

CREATE INDEX IF NOT EXISTS idx_tasks_teacher ON tasks(teacher_id);
CREATE INDEX IF NOT EXISTS idx_tasks_open ON tasks(created_at DESC)
    WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_tasks_difficulty ON tasks(difficulty) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id UUID NOT NULL REFERENCES tasks(id),
    student_id UUID NOT NULL REFERENCES profiles(id),
    status VARCHAR(15) NOT NULL DEFAULT 'active',
    stake_locked BIGINT NOT NULL,
    submission_text TEXT NOT NULL DEFAULT '',
    submitted_at TIMESTAMP WITH TIME ZONE,
    score INTEGER NOT NULL DEFAULT 0,
    review_feedback TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMP WITH TIME ZONE,
    deadline TIMESTAMP WITH TIME ZONE,
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_enrollment_status CHECK (status IN ('active', 'completed', 'reviewed', 'cancelled')),
    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 5)
);

-- One live attempt per (task, student); a cancelled enrollment frees
-- the pair for a retry.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_enrollments_live
    ON enrollments(task_id, student_id) WHERE status != 'cancelled';

CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id, enrolled_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrollments_task ON enrollments(task_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_awaiting_review ON enrollments(submitted_at)
    WHERE status = 'completed';
CREATE INDEX IF NOT EXISTS idx_enrollments_deadline ON enrollments(deadline)
    WHERE status = 'active' AND deadline IS NOT NULL;
`

const migration002Down = `
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS tasks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: BADGES, QUESTIONS, RECOMMENDATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create badges, questions and recommendations
-- Version: 003

CREATE TABLE IF NOT EXISTS badges (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES profiles(id),
    teacher_id UUID NOT NULL REFERENCES profiles(id),
    task_id UUID NOT NULL REFERENCES tasks(id),
    enrollment_id UUID NOT NULL REFERENCES enrollments(id),
    title VARCHAR(100) NOT NULL,
    description TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    skill_verified VARCHAR(100) NOT NULL,
    token_id VARCHAR(20) NOT NULL,
    blockchain_network VARCHAR(50) NOT NULL,
    anchor_tx_hash TEXT NOT NULL DEFAULT '',
    minted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uniq_badge_per_enrollment UNIQUE (enrollment_id)
);

CREATE INDEX IF NOT EXISTS idx_badges_student ON badges(student_id, minted_at DESC);

CREATE TABLE IF NOT EXISTS questions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id UUID NOT NULL REFERENCES tasks(id),
    student_id UUID NOT NULL REFERENCES profiles(id),
    question_text TEXT NOT NULL,
    answer_text TEXT NOT NULL DEFAULT '',
    answered_by UUID,
    answered_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_questions_thread ON questions(task_id, student_id, created_at);
CREATE INDEX IF NOT EXISTS idx_questions_unanswered ON questions(task_id)
    WHERE answer_text = '';

CREATE TABLE IF NOT EXISTS recommendations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES profiles(id),
    task_id UUID NOT NULL REFERENCES tasks(id),
    explanation TEXT NOT NULL,
    relevance_score INTEGER NOT NULL,
    factors JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_relevance CHECK (relevance_score >= 0 AND relevance_score <= 100),
    CONSTRAINT uniq_recommendation UNIQUE (student_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_recommendations_student ON recommendations(student_id, relevance_score DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS recommendations;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS badges;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: TASK CATALOG COLUMNS AND ANSWER HISTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Task catalog columns and answer history
-- Version: 004

ALTER TABLE tasks
    ADD COLUMN IF NOT EXISTS category VARCHAR(50) NOT NULL DEFAULT '',
    ADD COLUMN IF NOT EXISTS tags TEXT[] NOT NULL DEFAULT '{}',
    ADD COLUMN IF NOT EXISTS max_attempts INTEGER NOT NULL DEFAULT 0,
    ADD COLUMN IF NOT EXISTS total_attempts INTEGER NOT NULL DEFAULT 0,
    ADD COLUMN IF NOT EXISTS successful_completions INTEGER NOT NULL DEFAULT 0;

ALTER TABLE tasks
    ADD CONSTRAINT valid_max_attempts CHECK (max_attempts >= 0),
    ADD CONSTRAINT completions_within_attempts
        CHECK (successful_completions >= 0 AND successful_completions <= total_attempts);

CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category)
    WHERE category != '';

-- Every answer is its own row; re-answering appends instead of
-- overwriting.
CREATE TABLE IF NOT EXISTS answers (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    question_id UUID NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    responder_id UUID NOT NULL REFERENCES profiles(id),
    is_from_teacher BOOLEAN NOT NULL DEFAULT FALSE,
    answer_text TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id, created_at);

-- Carry existing single answers into the history.
INSERT INTO answers (question_id, responder_id, is_from_teacher, answer_text, created_at)
SELECT id, answered_by, TRUE, answer_text, COALESCE(answered_at, updated_at)
FROM questions
WHERE answer_text != '' AND answered_by IS NOT NULL;

DROP INDEX IF EXISTS idx_questions_unanswered;

ALTER TABLE questions
    DROP COLUMN IF EXISTS answer_text,
    DROP COLUMN IF EXISTS answered_by,
    DROP COLUMN IF EXISTS answered_at;
`

const migration004Down = `
ALTER TABLE questions
    ADD COLUMN IF NOT EXISTS answer_text TEXT NOT NULL DEFAULT '',
    ADD COLUMN IF NOT EXISTS answered_by UUID,
    ADD COLUMN IF NOT EXISTS answered_at TIMESTAMP WITH TIME ZONE;

UPDATE questions q
SET answer_text = latest.answer_text,
    answered_by = latest.responder_id,
    answered_at = latest.created_at
FROM (
    SELECT DISTINCT ON (question_id) question_id, responder_id, answer_text, created_at
    FROM answers
    ORDER BY question_id, created_at DESC
) latest
WHERE q.id = latest.question_id;

CREATE INDEX IF NOT EXISTS idx_questions_unanswered ON questions(task_id)
    WHERE answer_text = '';

DROP TABLE IF EXISTS answers;

DROP INDEX IF EXISTS idx_tasks_category;

ALTER TABLE tasks
    DROP CONSTRAINT IF EXISTS completions_within_attempts,
    DROP CONSTRAINT IF EXISTS valid_max_attempts;

ALTER TABLE tasks
    DROP COLUMN IF EXISTS successful_completions,
    DROP COLUMN IF EXISTS total_attempts,
    DROP COLUMN IF EXISTS max_attempts,
    DROP COLUMN IF EXISTS tags,
    DROP COLUMN IF EXISTS category;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_profiles_and_ledger", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_tasks_and_enrollments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_badges_questions_recommendations", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "task_catalog_and_answer_history", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}
