package database

var schema = []string{`
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(128) PRIMARY KEY,
    name VARCHAR(255),
    email VARCHAR(255),
    is_subscribed TINYINT(1) NOT NULL DEFAULT 0,
    has_payment_method TINYINT(1) NOT NULL DEFAULT 0,
    remaining_fast_videos INT NOT NULL DEFAULT 0,
    remaining_quality_videos INT NOT NULL DEFAULT 0,
    credits INT NOT NULL DEFAULT 0,
    usage_fast INT NOT NULL DEFAULT 0,
    usage_quality INT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CONSTRAINT chk_users_credits CHECK (credits >= 0),
    CONSTRAINT chk_users_fast CHECK (remaining_fast_videos >= 0),
    CONSTRAINT chk_users_quality CHECK (remaining_quality_videos >= 0)
)`, `
CREATE TABLE IF NOT EXISTS generation_logs (
    id CHAR(36) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    tier VARCHAR(16) NOT NULL,
    prompt TEXT NOT NULL,
    cost INT NOT NULL,
    video_url TEXT,
    duration_seconds INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_generation_logs_user (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`, `
CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    provider VARCHAR(64) NOT NULL,
    provider_payment_charge_id VARCHAR(255) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    amount BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL,
    raw_payload MEDIUMTEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_provider_charge (provider, provider_payment_charge_id),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
}
