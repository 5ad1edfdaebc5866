package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS hubs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    district    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS operators (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    hub_id          INTEGER NOT NULL REFERENCES hubs(id),
    name            TEXT NOT NULL,
    phone           TEXT NOT NULL UNIQUE,
    capability      TEXT NOT NULL DEFAULT 'baler',
    verified        INTEGER NOT NULL DEFAULT 0,
    active          INTEGER NOT NULL DEFAULT 1,
    online          INTEGER NOT NULL DEFAULT 0,
    lat             REAL,
    lng             REAL,
    last_seen_at    TEXT,
    total_jobs      INTEGER NOT NULL DEFAULT 0,
    total_earnings  REAL NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_operators_hub ON operators(hub_id);

CREATE TABLE IF NOT EXISTS requests (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid                TEXT NOT NULL UNIQUE,
    requester_id        INTEGER NOT NULL,
    residue_source      TEXT NOT NULL DEFAULT '',
    hub_id              INTEGER NOT NULL REFERENCES hubs(id),
    crop_type           TEXT NOT NULL,
    estimated_quantity  REAL NOT NULL DEFAULT 0,
    rate_per_tonne      REAL NOT NULL DEFAULT 0,
    estimated_price     REAL NOT NULL DEFAULT 0,
    actual_quantity     REAL,
    final_price         REAL,
    harvest_end_date    TEXT NOT NULL DEFAULT '',
    scheduled_date      TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'pending',
    cancel_reason       TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    completed_at        TEXT
);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_hub ON requests(hub_id);

CREATE TABLE IF NOT EXISTS assignments (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id              INTEGER NOT NULL REFERENCES requests(id),
    hub_id                  INTEGER NOT NULL REFERENCES hubs(id),
    primary_operator_id     INTEGER NOT NULL REFERENCES operators(id),
    secondary_operator_id   INTEGER REFERENCES operators(id),
    status                  TEXT NOT NULL DEFAULT 'assigned',
    operator_status         TEXT NOT NULL DEFAULT 'pending',
    estimated_earning       REAL NOT NULL DEFAULT 0,
    rejection_reason        TEXT NOT NULL DEFAULT '',
    photos                  TEXT NOT NULL DEFAULT '[]',
    bale_count              INTEGER,
    load_weight             REAL,
    moisture                REAL,
    time_required           TEXT NOT NULL DEFAULT '',
    signature               TEXT NOT NULL DEFAULT '',
    remarks                 TEXT NOT NULL DEFAULT '',
    actual_quantity         REAL,
    assigned_at             TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    accepted_at             TEXT,
    en_route_at             TEXT,
    arrived_at              TEXT,
    work_started_at         TEXT,
    work_complete_at        TEXT,
    delivered_at            TEXT,
    rejected_at             TEXT,
    completed_at            TEXT,
    updated_at              TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_assignments_request ON assignments(request_id);
CREATE INDEX IF NOT EXISTS idx_assignments_primary ON assignments(primary_operator_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_active
    ON assignments(request_id) WHERE status <> 'cancelled' AND operator_status <> 'rejected';

CREATE TABLE IF NOT EXISTS assignment_history (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    assignment_id   INTEGER NOT NULL,
    status          TEXT NOT NULL,
    operator_status TEXT NOT NULL,
    actor           TEXT NOT NULL DEFAULT 'system',
    detail          TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_assignment_history_assignment ON assignment_history(assignment_id);

CREATE TABLE IF NOT EXISTS job_credits (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    assignment_id           INTEGER NOT NULL UNIQUE,
    request_id              INTEGER NOT NULL,
    operator_id             INTEGER NOT NULL,
    secondary_operator_id   INTEGER,
    earning                 REAL NOT NULL DEFAULT 0,
    quantity                REAL NOT NULL DEFAULT 0,
    source                  TEXT NOT NULL DEFAULT 'operator',
    created_at              TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    station_id  TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    hub_id        INTEGER REFERENCES hubs(id),
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
