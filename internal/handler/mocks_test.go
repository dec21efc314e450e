package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/hub"
	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/user"
)

// --- AuthServiceInterface ---

type mockAuthService struct {
	loginFn    func(ctx context.Context, email, password, ip, userAgent string) (*model.SessionInfo, string, error)
	validateFn func(ctx context.Context, token string) (*model.SessionInfo, error)
	refreshFn  func(ctx context.Context, token string) (*model.SessionInfo, error)
	destroyFn  func(ctx context.Context, token string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*model.SessionInfo, string, error) {
	return m.loginFn(ctx, email, password, ip, userAgent)
}

func (m *mockAuthService) ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	return m.validateFn(ctx, token)
}

func (m *mockAuthService) RefreshSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	return m.refreshFn(ctx, token)
}

func (m *mockAuthService) DestroySession(ctx context.Context, token string) error {
	if m.destroyFn == nil {
		return nil
	}
	return m.destroyFn(ctx, token)
}

// memoryAuthService はトークンをメモリ上で管理する認証サービスのフェイク。
type memoryAuthService struct {
	mu       sync.Mutex
	users    map[string]memoryUser
	sessions map[string]*model.SessionInfo
}

type memoryUser struct {
	id       string
	password string
	role     model.Role
}

func newMemoryAuthService() *memoryAuthService {
	return &memoryAuthService{
		users:    make(map[string]memoryUser),
		sessions: make(map[string]*model.SessionInfo),
	}
}

func (m *memoryAuthService) addUser(email, password string, role model.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[email] = memoryUser{id: "user-" + email, password: password, role: role}
}

// issue はログインを経由せずにセッションを発行する。
func (m *memoryAuthService) issue(userID string, role model.Role) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.NewString()
	m.sessions[token] = &model.SessionInfo{
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(8 * time.Hour),
	}
	return token
}

func (m *memoryAuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*model.SessionInfo, string, error) {
	m.mu.Lock()
	u, ok := m.users[email]
	m.mu.Unlock()
	if !ok || u.password != password {
		return nil, "", auth.ErrInvalidCredentials
	}
	token := m.issue(u.id, u.role)
	info, _ := m.ValidateSession(ctx, token)
	info.Email = email
	return info, token, nil
}

func (m *memoryAuthService) ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[token]
	if !ok {
		return nil, auth.ErrSessionInvalid
	}
	cp := *info
	return &cp, nil
}

func (m *memoryAuthService) RefreshSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[token]
	if !ok {
		return nil, auth.ErrSessionInvalid
	}
	info.ExpiresAt = time.Now().Add(8 * time.Hour)
	cp := *info
	return &cp, nil
}

func (m *memoryAuthService) DestroySession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// --- ScoreServiceInterface ---

type mockScoreService struct {
	currentFn func(ctx context.Context) (*model.Score, error)
	updateFn  func(ctx context.Context, score model.Score) (*model.Score, error)
	resetFn   func(ctx context.Context) (*model.Score, error)
}

func (m *mockScoreService) Current(ctx context.Context) (*model.Score, error) {
	return m.currentFn(ctx)
}

func (m *mockScoreService) Update(ctx context.Context, score model.Score) (*model.Score, error) {
	return m.updateFn(ctx, score)
}

func (m *mockScoreService) Reset(ctx context.Context) (*model.Score, error) {
	return m.resetFn(ctx)
}

// --- ChatHistoryService / HubController ---

type mockChatHistory struct {
	recentFn func(ctx context.Context, limit int) ([]*model.ChatMessage, error)
}

func (m *mockChatHistory) Recent(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	return m.recentFn(ctx, limit)
}

type mockHubController struct {
	stats      hub.Stats
	moderateFn func(username string, action hub.ModerationAction) error
}

func (m *mockHubController) Stats() hub.Stats { return m.stats }

func (m *mockHubController) Moderate(username string, action hub.ModerationAction) error {
	if m.moderateFn == nil {
		return nil
	}
	return m.moderateFn(username, action)
}

// --- UserServiceInterface ---

type mockUserService struct {
	updateFn func(ctx context.Context, userID string, in user.UpdateInput) (*model.User, error)
}

func (m *mockUserService) Update(ctx context.Context, userID string, in user.UpdateInput) (*model.User, error) {
	return m.updateFn(ctx, userID, in)
}

// --- helpers ---

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", body, err)
	}
	return resp.Code
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
