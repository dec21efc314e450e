package model

import "time"

// ChatMessage は永続化済みのチャットメッセージを表す。
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Score は試合のライブスコアのスナップショットを表す。
type Score struct {
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	HomeScore int       `json:"homeScore"`
	AwayScore int       `json:"awayScore"`
	Period    string    `json:"period"`
	UpdatedAt time.Time `json:"updatedAt"`
}
