package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// sessionTokenBytes は256ビット分のエントロピー。
const sessionTokenBytes = 32

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashSessionToken はDB保存用にトークンのSHA-256ハッシュを返す。
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
