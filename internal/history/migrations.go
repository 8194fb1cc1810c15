package history

const schema = `
CREATE TABLE IF NOT EXISTS bot_runs (
    id TEXT PRIMARY KEY,
    bot TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    tokens_input INTEGER,
    tokens_output INTEGER,
    cost_usd REAL,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_bot_runs_bot ON bot_runs(bot);
CREATE INDEX IF NOT EXISTS idx_bot_runs_status ON bot_runs(status);

CREATE TABLE IF NOT EXISTS arena_runs (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMP,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS arena_stages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES arena_runs(id),
    role TEXT NOT NULL,
    status TEXT NOT NULL,
    content TEXT,
    word_count INTEGER,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_arena_stages_run_id ON arena_stages(run_id);
`
