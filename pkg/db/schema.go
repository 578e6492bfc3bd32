// schema.go

package db

// CreateAllTablesSQL creates the service schema.
const CreateAllTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL DEFAULT '',
    email VARCHAR(255) UNIQUE NOT NULL,
    avatar_url TEXT NOT NULL DEFAULT '',
    eyes BIGINT NOT NULL DEFAULT 0 CHECK (eyes >= 0),
    push_tokens TEXT[] NOT NULL DEFAULT '{}',
    eye_purchases TEXT[] NOT NULL DEFAULT '{}',
    monthly_seconds_played BIGINT NOT NULL DEFAULT 0,
    yearly_seconds_played BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- Participant sets are stored inline. left_users and lost_users carry the
-- rejoin ban across restarts.
CREATE TABLE IF NOT EXISTS rounds (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
    duration_minutes INT NOT NULL DEFAULT 0,
    roster TEXT[] NOT NULL DEFAULT '{}',
    connected_users TEXT[] NOT NULL DEFAULT '{}',
    connected_count INT NOT NULL DEFAULT 0,
    ready_users TEXT[] NOT NULL DEFAULT '{}',
    ready_count INT NOT NULL DEFAULT 0,
    left_users TEXT[] NOT NULL DEFAULT '{}',
    lost_users TEXT[] NOT NULL DEFAULT '{}',
    prize_pool BIGINT NOT NULL DEFAULT 0,
    prize_distributed BOOLEAN NOT NULL DEFAULT FALSE,
    per_winner BIGINT NOT NULL DEFAULT 0,
    final_score INT NOT NULL DEFAULT 0,
    reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
    start_notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_rounds_starts_at ON rounds(starts_at);

CREATE TABLE IF NOT EXISTS wallets (
    id UUID PRIMARY KEY,
    user_id UUID UNIQUE NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS wallet_transactions (
    id UUID PRIMARY KEY,
    wallet_id UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    type VARCHAR(10) NOT NULL CHECK (type IN ('credit', 'debit')),
    status VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
    reference VARCHAR(120),
    transfer_code VARCHAR(60) NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_tx_reference
    ON wallet_transactions(reference) WHERE reference IS NOT NULL AND status = 'completed';
CREATE INDEX IF NOT EXISTS idx_wallet_tx_wallet ON wallet_transactions(wallet_id, created_at DESC);
`

// DropAllTablesSQL removes the service schema.
const DropAllTablesSQL = `
DROP TABLE IF EXISTS wallet_transactions;
DROP TABLE IF EXISTS wallets;
DROP TABLE IF EXISTS rounds;
DROP TABLE IF EXISTS users;
`
