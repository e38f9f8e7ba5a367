package runlog

const schema = `
CREATE TABLE IF NOT EXISTS run_logs (
    id TEXT PRIMARY KEY,
    report_id INTEGER NOT NULL,
    trigger_kind TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    instances_found INTEGER NOT NULL DEFAULT 0,
    recipients INTEGER NOT NULL DEFAULT 0,
    emails_sent INTEGER NOT NULL DEFAULT 0,
    emails_failed INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_logs_report ON run_logs(report_id, finished_at);

CREATE TABLE IF NOT EXISTS run_locks (
    report_id INTEGER PRIMARY KEY,
    holder TEXT NOT NULL,
    acquired_at TIMESTAMP NOT NULL
);
`
