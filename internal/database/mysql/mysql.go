package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"forum-bot-service/internal/config"

	driver "github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		topic_id VARCHAR(64) NOT NULL,
		username VARCHAR(255) NOT NULL,
		last_activity DATETIME(6) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		INDEX idx_conversations_lookup (topic_id, username, is_active, last_activity)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		conversation_id BIGINT NOT NULL,
		author ENUM('user', 'ai') NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		content MEDIUMTEXT NOT NULL,
		username VARCHAR(255) NOT NULL,
		INDEX idx_messages_conversation (conversation_id, timestamp),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		topic_id VARCHAR(64) NOT NULL,
		question TEXT NOT NULL,
		answer VARCHAR(512) NOT NULL,
		variants TEXT NULL,
		category VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		last_hint_served INT NOT NULL DEFAULT 0,
		solved BOOLEAN NOT NULL DEFAULT FALSE,
		solved_by VARCHAR(255) NULL,
		solved_at DATETIME(6) NULL,
		INDEX idx_quiz_questions_topic (topic_id, created_at)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS quiz_hints (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		question_id BIGINT NOT NULL,
		hint_order INT NOT NULL,
		hint_text TEXT NOT NULL,
		UNIQUE KEY uq_quiz_hints_order (question_id, hint_order),
		FOREIGN KEY (question_id) REFERENCES quiz_questions(id)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS quiz_scores (
		user_name VARCHAR(255) PRIMARY KEY,
		score INT NOT NULL DEFAULT 0
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS quiz_answer_queue (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		question_id BIGINT NOT NULL,
		user_name VARCHAR(255) NOT NULL,
		answer TEXT NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX idx_quiz_answer_queue_pending (question_id, processed, timestamp)
	) CHARACTER SET utf8mb4`,
}

// DSN builds the driver connection string; times are read and written as UTC
func DSN(cfg *config.MySQLConfig) string {
	dsn := driver.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// Open connects, verifies the connection and creates missing tables
func Open(ctx context.Context, cfg *config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Printf("Successfully connected to MySQL database: %s", cfg.Database)
	return db, nil
}
