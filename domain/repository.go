package domain

import (
	"context"
	"errors"
)

// リポジトリが返すエラー。ハンドラー側で HTTP ステータスへ変換する。
var (
	// ErrConflict はメールアドレスまたは ID の重複。
	ErrConflict = errors.New("domain: user already exists")
	// ErrNotFound は該当ユーザーなし。
	ErrNotFound = errors.New("domain: user not found")
	// ErrCredentialMismatch は保存済みクレデンシャルと ID が一致しない。
	ErrCredentialMismatch = errors.New("domain: credential id mismatch")
)

// UserRepository はユーザーの永続化を抽象化する。
// Create はメール・ID の一意性チェックと挿入を単一の原子的操作として
// 行わなければならない（同一メールの同時登録レースはここで解決する）。
type UserRepository interface {
	Create(ctx context.Context, user User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	// UpdateSignCount はカウンタを更新する。credentialID が保存済みの
	// パスキーと一致しない場合は ErrCredentialMismatch を返し、何も変更しない。
	UpdateSignCount(ctx context.Context, userID string, credentialID []byte, signCount uint32) error
}
