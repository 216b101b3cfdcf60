// Package sqlite は UserRepository の SQLite 実装。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dchf12/passkey/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL,
	dob           TEXT NOT NULL,
	credential_id BLOB NOT NULL,
	public_key    BLOB NOT NULL,
	sign_count    INTEGER NOT NULL DEFAULT 0,
	device_type   TEXT NOT NULL,
	backed_up     INTEGER NOT NULL DEFAULT 0,
	transports    TEXT NOT NULL DEFAULT '[]'
);
`

// Store はユーザーとパスキーを単一の SQLite ファイルへ永続化する。
// パスキーはユーザーにつき1つなので同じ行に埋め込む。
type Store struct {
	db *sql.DB
}

// Open は SQLite ストアを開き、スキーマを適用する。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close は基盤の DB ハンドルを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Create はユーザーを挿入する。一意性チェックは UNIQUE 制約に任せることで
// 同一メールの同時登録でも一方だけが成功する。
func (s *Store) Create(ctx context.Context, user domain.User) error {
	transports, err := json.Marshal(user.Passkey.Transports)
	if err != nil {
		return fmt.Errorf("sqlite: encode transports: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, dob,
			credential_id, public_key, sign_count, device_type, backed_up, transports)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.DOB,
		user.Passkey.ID, user.Passkey.PublicKey, int64(user.Passkey.SignCount),
		user.Passkey.DeviceType, boolToInt(user.Passkey.BackedUp), string(transports),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("sqlite: insert user: %w", err)
	}
	return nil
}

// GetByEmail はメールアドレスでユーザーを検索する。
func (s *Store) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email)
	return scanUser(row)
}

// GetByID は ID でユーザーを取得する。
func (s *Store) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id)
	return scanUser(row)
}

// UpdateSignCount はカウンタを更新する。WHERE 句に credential_id を含める
// ことで、別クレデンシャルへのカウンタ書き込みは行に当たらず失敗する。
func (s *Store) UpdateSignCount(ctx context.Context, userID string, credentialID []byte, signCount uint32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET sign_count = ? WHERE id = ? AND credential_id = ?`,
		int64(signCount), userID, credentialID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update sign count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: check user: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrCredentialMismatch
	}
	return nil
}

const selectUser = `
	SELECT id, email, first_name, last_name, dob,
		credential_id, public_key, sign_count, device_type, backed_up, transports
	FROM users`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		user       domain.User
		signCount  int64
		backedUp   int
		transports string
	)
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.DOB,
		&user.Passkey.ID, &user.Passkey.PublicKey, &signCount,
		&user.Passkey.DeviceType, &backedUp, &transports)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("sqlite: scan user: %w", err)
	}
	user.Passkey.SignCount = uint32(signCount)
	user.Passkey.BackedUp = backedUp != 0
	if err := json.Unmarshal([]byte(transports), &user.Passkey.Transports); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: decode transports: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.UserRepository = (*Store)(nil)
