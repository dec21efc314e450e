package hub

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrAlreadyJoined は参加済みの接続が再度joinしようとした場合に返される。
	ErrAlreadyJoined = errors.New("connection already joined")
	// ErrNotJoined は未参加の接続、または別名でのleaveに対して返される。
	ErrNotJoined = errors.New("connection has not joined")
	// ErrInvalidUsername は空のユーザー名に対して返される。
	ErrInvalidUsername = errors.New("username must not be empty")
)

// Participant は接続に紐づくチャット参加者の状態。認証済みセッションとは独立している。
type Participant struct {
	ConnID       string
	Username     string
	JoinedAt     time.Time
	MessageCount int
	IsMuted      bool
	IsBanned     bool
}

type sanction struct {
	muted  bool
	banned bool
}

// Registry は接続ID → 参加者の対応を保持するインメモリ台帳。
// 永続化はせず、プロセス再起動で空に戻る。
// 並行安全ではないため、Hubのイベントループからのみ操作する。
type Registry struct {
	byConn map[string]*Participant
	// ユーザー名単位のモデレーション状態。再参加しても引き継がれる。
	sanctions map[string]sanction
}

// NewRegistry は空の台帳を生成する。
func NewRegistry() *Registry {
	return &Registry{
		byConn:    make(map[string]*Participant),
		sanctions: make(map[string]sanction),
	}
}

// Join は接続を参加状態にする。
func (r *Registry) Join(connID, username string, at time.Time) (*Participant, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	if _, ok := r.byConn[connID]; ok {
		return nil, ErrAlreadyJoined
	}
	s := r.sanctions[username]
	p := &Participant{
		ConnID:   connID,
		Username: username,
		JoinedAt: at,
		IsMuted:  s.muted,
		IsBanned: s.banned,
	}
	r.byConn[connID] = p
	return p, nil
}

// Leave は参加中の接続を未参加状態に戻す。usernameは参加時の名前と一致する必要がある。
func (r *Registry) Leave(connID, username string) (*Participant, error) {
	p, ok := r.byConn[connID]
	if !ok || p.Username != strings.TrimSpace(username) {
		return nil, ErrNotJoined
	}
	delete(r.byConn, connID)
	return p, nil
}

// Remove は切断時に参加情報を取り除く。未参加なら false を返す。
func (r *Registry) Remove(connID string) (*Participant, bool) {
	p, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	return p, ok
}

// Get は参加者のコピーを返す。
func (r *Registry) Get(connID string) (Participant, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// RecordMessage は参加者の送信数を1増やし、更新後の値を返す。
func (r *Registry) RecordMessage(connID string) (int, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	p.MessageCount++
	return p.MessageCount, true
}

// Moderate はユーザー名に対するモデレーション状態を更新し、該当する参加中の接続数を返す。
// warn は状態を変えない。
func (r *Registry) Moderate(username string, action ModerationAction) int {
	s := r.sanctions[username]
	switch action {
	case ActionMute:
		s.muted = true
	case ActionUnmute:
		s.muted = false
	case ActionBan:
		s.banned = true
	case ActionUnban:
		s.banned = false
	}
	if s == (sanction{}) {
		delete(r.sanctions, username)
	} else {
		r.sanctions[username] = s
	}

	n := 0
	for _, p := range r.byConn {
		if p.Username != username {
			continue
		}
		p.IsMuted = s.muted
		p.IsBanned = s.banned
		n++
	}
	return n
}

// Len は参加中の接続数を返す。
func (r *Registry) Len() int {
	return len(r.byConn)
}
