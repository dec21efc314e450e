// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はチャット投稿からマークアップを除去し、
// 他の視聴者の画面でスクリプトやタグが解釈されることを防ぐ。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はチャット本文のサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// Sanitize は全てのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// script, styleなどの要素は中身ごと除去される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので複数のゴルーチンから共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はタグを一切許可しないポリシーでサニタイザを生成する。
func NewContentSanitizer() ContentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// bluemondayはテキストをHTMLエスケープして返すため、保存前に元の文字へ戻す。
// クライアントは本文をテキストとして描画する。
func (s *contentSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
