package pgstore

const schema = `
CREATE TABLE IF NOT EXISTS players (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    avatar TEXT NOT NULL DEFAULT '',
    level INTEGER NOT NULL DEFAULT 1,
    experience BIGINT NOT NULL DEFAULT 0,
    completed_quest_count INTEGER NOT NULL DEFAULT 0,
    total_quest_count INTEGER NOT NULL DEFAULT 0,
    completed_quests TEXT[] NOT NULL DEFAULT '{}',
    points BIGINT NOT NULL DEFAULT 0,
    revision BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_experience CHECK (experience >= 0),
    CONSTRAINT valid_quest_counts CHECK (completed_quest_count >= 0 AND total_quest_count >= 0)
);

DO $$
BEGIN
    IF EXISTS (SELECT 1 FROM information_schema.columns
               WHERE table_name = 'players' AND column_name = 'experience'
                 AND data_type = 'integer') THEN
        ALTER TABLE players ALTER COLUMN experience TYPE BIGINT;
    END IF;
END $$;

CREATE INDEX IF NOT EXISTS idx_players_ranking
    ON players(points DESC, completed_quest_count DESC, user_id ASC);

CREATE TABLE IF NOT EXISTS player_achievements (
    user_id TEXT NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
    achievement_id TEXT NOT NULL,
    unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    progress_current INTEGER,
    progress_total INTEGER,
    PRIMARY KEY (user_id, achievement_id)
);
`
