package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
)

// --- モック定義 ---

// memUserRepo はメモリ上のユーザーリポジトリ。
type memUserRepo struct {
	mu          sync.Mutex
	users       map[string]*model.User
	findErr     error
	lastLoginAt map[string]time.Time
}

func newMemUserRepo(users ...*model.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*model.User{}, lastLoginAt: map[string]time.Time{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLoginAt[id] = at
	return nil
}

func (r *memUserRepo) UpdateRoleAndActive(_ context.Context, id string, role model.Role, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.IsActive = active
	return nil
}

// memSessionRepo はメモリ上のセッションリポジトリ。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	err      error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := *s
	r.sessions[s.TokenHash] = &cp
	return nil
}

func (r *memSessionRepo) FindByTokenHash(_ context.Context, h string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.sessions[h]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Touch(_ context.Context, h string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[h]; ok && at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return nil
}

func (r *memSessionRepo) Extend(_ context.Context, h string, expiresAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[h]; ok {
		s.ExpiresAt = expiresAt
		if at.After(s.LastActivity) {
			s.LastActivity = at
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteByTokenHash(_ context.Context, h string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.sessions, h)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, h)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, h)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// fakeClock はテスト用の手動時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingHasher はVerifyの呼び出し回数を数える。
type countingHasher struct {
	PasswordHasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(password, hash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHasher.Verify(password, hash)
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)
