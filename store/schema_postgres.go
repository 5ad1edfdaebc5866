package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS hubs (
    id          BIGSERIAL PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    district    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS operators (
    id              BIGSERIAL PRIMARY KEY,
    hub_id          BIGINT NOT NULL REFERENCES hubs(id),
    name            TEXT NOT NULL,
    phone           TEXT NOT NULL UNIQUE,
    capability      TEXT NOT NULL DEFAULT 'baler',
    verified        BOOLEAN NOT NULL DEFAULT FALSE,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    online          BOOLEAN NOT NULL DEFAULT FALSE,
    lat             DOUBLE PRECISION,
    lng             DOUBLE PRECISION,
    last_seen_at    TIMESTAMPTZ,
    total_jobs      INTEGER NOT NULL DEFAULT 0,
    total_earnings  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_operators_hub ON operators(hub_id);

CREATE TABLE IF NOT EXISTS requests (
    id                  BIGSERIAL PRIMARY KEY,
    uuid                TEXT NOT NULL UNIQUE,
    requester_id        BIGINT NOT NULL,
    residue_source      TEXT NOT NULL DEFAULT '',
    hub_id              BIGINT NOT NULL REFERENCES hubs(id),
    crop_type           TEXT NOT NULL,
    estimated_quantity  DOUBLE PRECISION NOT NULL DEFAULT 0,
    rate_per_tonne      DOUBLE PRECISION NOT NULL DEFAULT 0,
    estimated_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
    actual_quantity     DOUBLE PRECISION,
    final_price         DOUBLE PRECISION,
    harvest_end_date    TEXT NOT NULL DEFAULT '',
    scheduled_date      TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'pending',
    cancel_reason       TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_hub ON requests(hub_id);

CREATE TABLE IF NOT EXISTS assignments (
    id                      BIGSERIAL PRIMARY KEY,
    request_id              BIGINT NOT NULL REFERENCES requests(id),
    hub_id                  BIGINT NOT NULL REFERENCES hubs(id),
    primary_operator_id     BIGINT NOT NULL REFERENCES operators(id),
    secondary_operator_id   BIGINT REFERENCES operators(id),
    status                  TEXT NOT NULL DEFAULT 'assigned',
    operator_status         TEXT NOT NULL DEFAULT 'pending',
    estimated_earning       DOUBLE PRECISION NOT NULL DEFAULT 0,
    rejection_reason        TEXT NOT NULL DEFAULT '',
    photos                  TEXT NOT NULL DEFAULT '[]',
    bale_count              INTEGER,
    load_weight             DOUBLE PRECISION,
    moisture                DOUBLE PRECISION,
    time_required           TEXT NOT NULL DEFAULT '',
    signature               TEXT NOT NULL DEFAULT '',
    remarks                 TEXT NOT NULL DEFAULT '',
    actual_quantity         DOUBLE PRECISION,
    assigned_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    accepted_at             TIMESTAMPTZ,
    en_route_at             TIMESTAMPTZ,
    arrived_at              TIMESTAMPTZ,
    work_started_at         TIMESTAMPTZ,
    work_complete_at        TIMESTAMPTZ,
    delivered_at            TIMESTAMPTZ,
    rejected_at             TIMESTAMPTZ,
    completed_at            TIMESTAMPTZ,
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_assignments_request ON assignments(request_id);
CREATE INDEX IF NOT EXISTS idx_assignments_primary ON assignments(primary_operator_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_active
    ON assignments(request_id) WHERE status <> 'cancelled' AND operator_status <> 'rejected';

CREATE TABLE IF NOT EXISTS assignment_history (
    id              BIGSERIAL PRIMARY KEY,
    assignment_id   BIGINT NOT NULL,
    status          TEXT NOT NULL,
    operator_status TEXT NOT NULL,
    actor           TEXT NOT NULL DEFAULT 'system',
    detail          TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_assignment_history_assignment ON assignment_history(assignment_id);

CREATE TABLE IF NOT EXISTS job_credits (
    id                      BIGSERIAL PRIMARY KEY,
    assignment_id           BIGINT NOT NULL UNIQUE,
    request_id              BIGINT NOT NULL,
    operator_id             BIGINT NOT NULL,
    secondary_operator_id   BIGINT,
    earning                 DOUBLE PRECISION NOT NULL DEFAULT 0,
    quantity                DOUBLE PRECISION NOT NULL DEFAULT 0,
    source                  TEXT NOT NULL DEFAULT 'operator',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    station_id  TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   BIGINT NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    hub_id        BIGINT REFERENCES hubs(id),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
