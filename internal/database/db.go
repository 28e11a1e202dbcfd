package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schema holds the DDL for the three tables the service owns.  Indexes are
// declared inline because MySQL has no CREATE INDEX IF NOT EXISTS.  The
// (queue_id, status, created_at) key serves FIFO selection and listing,
// (user_id, status) serves the single-active lookup, and the unique token
// key serves confirmation.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS queues (
		id    BIGINT PRIMARY KEY,
		title VARCHAR(255) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		external_id BIGINT NOT NULL,
		address     VARCHAR(255) NOT NULL DEFAULT '',
		name        VARCHAR(255) NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_external_id (external_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id               BIGINT AUTO_INCREMENT PRIMARY KEY,
		queue_id         BIGINT NOT NULL,
		user_id          BIGINT NOT NULL,
		status           VARCHAR(16) NOT NULL,
		created_at       DATETIME(6) NOT NULL,
		called_at        DATETIME(6) NULL,
		confirmed_at     DATETIME(6) NULL,
		served_at        DATETIME(6) NULL,
		canceled_at      DATETIME(6) NULL,
		no_show_at       DATETIME(6) NULL,
		token            VARCHAR(64) NULL,
		token_expires_at DATETIME(6) NULL,
		UNIQUE KEY uq_tickets_token (token),
		KEY idx_tickets_queue_status_created (queue_id, status, created_at),
		KEY idx_tickets_user_status (user_id, status),
		CONSTRAINT fk_tickets_queue FOREIGN KEY (queue_id) REFERENCES queues (id),
		CONSTRAINT fk_tickets_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables when they do not exist yet.  It is safe
// to call on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
