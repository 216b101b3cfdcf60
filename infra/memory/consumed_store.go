package memory

import (
	"sync"
	"time"
)

// ConsumedStore は消費済みセレモニートークンのインメモリ台帳。
// トークン自体はステートレスなので、ワンタイム性だけをここで持つ。
// エントリはトークンの有効期限までしか意味がないため、期限切れ分は
// Consume のたびに間引く（件数は TTL 内の verify 呼び出し数で頭打ち）。
type ConsumedStore struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	now      func() time.Time
}

// NewConsumedStore は空の ConsumedStore を生成する。now が nil なら time.Now。
func NewConsumedStore(now func() time.Time) *ConsumedStore {
	if now == nil {
		now = time.Now
	}
	return &ConsumedStore{
		consumed: make(map[string]time.Time),
		now:      now,
	}
}

// Consume はトークン ID を消費済みとして記録する。
// 初回だけ true。すでに記録済みなら false（再提示）。
// 記録と判定は同一ロック内で行うため、同時再提示の一方だけが成功する。
func (s *ConsumedStore) Consume(id string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.consumed {
		if now.After(exp) {
			delete(s.consumed, k)
		}
	}

	if _, ok := s.consumed[id]; ok {
		return false
	}
	s.consumed[id] = expiresAt
	return true
}
