package credstore

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auth_users (
  id            TEXT PRIMARY KEY,
  identity      TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name          TEXT NOT NULL DEFAULT '',
  email         TEXT NOT NULL DEFAULT '',
  phone         TEXT NOT NULL DEFAULT '',
  address       TEXT NOT NULL DEFAULT '',
  birthdate     TEXT NOT NULL DEFAULT '',
  totp_secret   TEXT NOT NULL DEFAULT '',
  created_at    BIGINT NOT NULL,
  updated_at    BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS auth_user_roles (
  identity TEXT NOT NULL,
  role     TEXT NOT NULL,
  PRIMARY KEY (identity, role)
)`,
	`CREATE TABLE IF NOT EXISTS auth_backup_codes (
  identity   TEXT NOT NULL,
  code_hash  TEXT NOT NULL,
  expires_at BIGINT NOT NULL,
  used       INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (identity, code_hash)
)`,
}

// EnsureSchema creates the tables if they do not exist. It is idempotent;
// production deployments may run the same DDL through their own migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("credstore: ensure schema: %w", err)
		}
	}
	return nil
}
