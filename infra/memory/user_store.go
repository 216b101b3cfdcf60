package memory

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/dchf12/passkey/domain"
)

// UserStore はインメモリの UserRepository 実装。
// DB_PATH 未設定の開発用途とテストで使う。
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserStore は空の UserStore を生成する。
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]domain.User),
	}
}

// Create はユーザーを保存する。ID・メールの重複チェックと挿入を
// 同一ロック内で行う（check-and-insert の原子性）。
func (s *UserStore) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return domain.ErrConflict
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

// GetByEmail はメールアドレスでユーザーを検索する。
func (s *UserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// GetByID は ID でユーザーを取得する。
func (s *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

// UpdateSignCount はパスキーのカウンタを更新する。
// credentialID が保存済みのものと一致しない場合は何も変更しない。
func (s *UserStore) UpdateSignCount(_ context.Context, userID string, credentialID []byte, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if !bytes.Equal(user.Passkey.ID, credentialID) {
		return domain.ErrCredentialMismatch
	}
	user.Passkey.SignCount = signCount
	s.users[userID] = user
	return nil
}
