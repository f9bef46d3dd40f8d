package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/totp"
)

var (
	ErrUserExists    = errors.New("credstore: user already exists")
	ErrEmptyIdentity = errors.New("credstore: empty identity")
)

var (
	_ authcore.CredentialStore = (*Store)(nil)
	_ authcore.TOTPStore       = (*Store)(nil)
	_ authcore.ProfileStore    = (*Store)(nil)
)

// Store reads and writes credentials through sqlx.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects with driverName ("postgres" or "sqlite"), verifies the
// connection and creates the schema.
func Open(ctx context.Context, driverName, dsn string) (*Store, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", driverName, err)
	}
	if driverName == "sqlite" {
		// One writer at a time.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore: ping: %w", err)
	}

	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// User is a new account. PasswordHash must already be hashed.
type User struct {
	Identity     string
	PasswordHash string
	Roles        []string
	Profile      password.Profile
}

type userRow struct {
	ID           string `db:"id"`
	Identity     string `db:"identity"`
	PasswordHash string `db:"password_hash"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	Phone        string `db:"phone"`
	Address      string `db:"address"`
	Birthdate    string `db:"birthdate"`
	TOTPSecret   string `db:"totp_secret"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

// CreateUser inserts u with its roles and returns the generated user ID.
func (s *Store) CreateUser(ctx context.Context, u User) (string, error) {
	identity := strings.TrimSpace(u.Identity)
	if identity == "" {
		return "", ErrEmptyIdentity
	}

	now := time.Now().UnixNano()
	row := userRow{
		ID:           uuid.NewString(),
		Identity:     identity,
		PasswordHash: u.PasswordHash,
		Name:         u.Profile.Name,
		Email:        u.Profile.Email,
		Phone:        u.Profile.Phone,
		Address:      u.Profile.Address,
		Birthdate:    u.Profile.Birthdate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM auth_users WHERE identity = ?`), identity); err != nil {
			return err
		}
		if n > 0 {
			return ErrUserExists
		}

		const insert = `INSERT INTO auth_users
  (id, identity, password_hash, name, email, phone, address, birthdate, totp_secret, created_at, updated_at)
  VALUES (:id, :identity, :password_hash, :name, :email, :phone, :address, :birthdate, :totp_secret, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
			return err
		}
		return insertRoles(ctx, tx, s.q, identity, u.Roles)
	})
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

// SetRoles replaces the roles of identity.
func (s *Store) SetRoles(ctx context.Context, identity string, roles []string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requireUser(ctx, tx, identity); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM auth_user_roles WHERE identity = ?`), identity); err != nil {
			return err
		}
		return insertRoles(ctx, tx, s.q, identity, roles)
	})
}

// DeleteUser removes identity with its roles and backup codes. Unknown
// identities are a no-op.
func (s *Store) DeleteUser(ctx context.Context, identity string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, query := range []string{
			`DELETE FROM auth_backup_codes WHERE identity = ?`,
			`DELETE FROM auth_user_roles WHERE identity = ?`,
			`DELETE FROM auth_users WHERE identity = ?`,
		} {
			if _, err := tx.ExecContext(ctx, s.q(query), identity); err != nil {
				return err
			}
		}
		return nil
	})
}

// UserID returns the generated ID of identity.
func (s *Store) UserID(ctx context.Context, identity string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.q(`SELECT id FROM auth_users WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", authcore.ErrUserNotFound
	}
	return id, err
}

/*
====================================
CREDENTIAL STORE
====================================
*/

func (s *Store) FetchPasswordHash(ctx context.Context, identity string) (string, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash, s.q(`SELECT password_hash FROM auth_users WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", authcore.ErrUserNotFound
	}
	return hash, err
}

func (s *Store) FetchRoles(ctx context.Context, identity string) ([]string, error) {
	var roles []string
	err := s.db.SelectContext(ctx, &roles, s.q(`SELECT role FROM auth_user_roles WHERE identity = ? ORDER BY role`), identity)
	return roles, err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, identity, hash string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE auth_users SET password_hash = ?, updated_at = ? WHERE identity = ?`),
		hash, time.Now().UnixNano(), identity)
	return requireRow(res, err)
}

/*
====================================
PROFILE STORE
====================================
*/

func (s *Store) FetchProfile(ctx context.Context, identity string) (password.Profile, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT * FROM auth_users WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return password.Profile{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return password.Profile{}, err
	}
	return password.Profile{
		Username:  row.Identity,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Address:   row.Address,
		Birthdate: row.Birthdate,
	}, nil
}

/*
====================================
TOTP STORE
====================================
*/

func (s *Store) FetchTOTPSecret(ctx context.Context, identity string) (string, error) {
	var secret string
	err := s.db.GetContext(ctx, &secret, s.q(`SELECT totp_secret FROM auth_users WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", authcore.ErrUserNotFound
	}
	return secret, err
}

func (s *Store) SaveTOTPSecret(ctx context.Context, identity, secret string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE auth_users SET totp_secret = ?, updated_at = ? WHERE identity = ?`),
		secret, time.Now().UnixNano(), identity)
	return requireRow(res, err)
}

// ReplaceBackupCodes swaps the whole code set of identity in one
// transaction. A nil slice clears it.
func (s *Store) ReplaceBackupCodes(ctx context.Context, identity string, codes []totp.BackupCodeRecord) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM auth_backup_codes WHERE identity = ?`), identity); err != nil {
			return err
		}
		insert := s.q(`INSERT INTO auth_backup_codes (identity, code_hash, expires_at, used) VALUES (?, ?, ?, ?)`)
		for _, c := range codes {
			if _, err := tx.ExecContext(ctx, insert, identity, c.Hash, c.ExpiresAt.UnixNano(), boolInt(c.Used)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks one unused, unexpired code as used with a single
// conditional UPDATE, so two concurrent logins cannot both redeem it.
func (s *Store) ConsumeBackupCode(ctx context.Context, identity, hash string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE auth_backup_codes SET used = 1
  WHERE identity = ? AND code_hash = ? AND used = 0 AND expires_at > ?`),
		identity, hash, now.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BackupCodes returns the stored records of identity, used ones included.
func (s *Store) BackupCodes(ctx context.Context, identity string) ([]totp.BackupCodeRecord, error) {
	var rows []struct {
		Hash      string `db:"code_hash"`
		ExpiresAt int64  `db:"expires_at"`
		Used      int    `db:"used"`
	}
	err := s.db.SelectContext(ctx, &rows,
		s.q(`SELECT code_hash, expires_at, used FROM auth_backup_codes WHERE identity = ? ORDER BY code_hash`), identity)
	if err != nil {
		return nil, err
	}
	out := make([]totp.BackupCodeRecord, len(rows))
	for i, r := range rows {
		out[i] = totp.BackupCodeRecord{
			Hash:      r.Hash,
			ExpiresAt: time.Unix(0, r.ExpiresAt).UTC(),
			Used:      r.Used != 0,
		}
	}
	return out, nil
}

/*
====================================
HELPERS
====================================
*/

func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) requireUser(ctx context.Context, tx *sqlx.Tx, identity string) error {
	var n int
	if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM auth_users WHERE identity = ?`), identity); err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func insertRoles(ctx context.Context, tx *sqlx.Tx, rebind func(string) string, identity string, roles []string) error {
	insert := rebind(`INSERT INTO auth_user_roles (identity, role) VALUES (?, ?)`)
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		if _, err := tx.ExecContext(ctx, insert, identity, role); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
