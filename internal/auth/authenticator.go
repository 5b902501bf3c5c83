// Package auth derives and verifies the room's session credential.
//
// The credential is a SHA-256 digest of a per-process secret and the room
// code. The secret is drawn once at start, so every restart invalidates all
// credentials issued before it.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/dkeye/Ping/internal/domain"
)

const secretBytes = 32

// Secret is the server-lifetime random value. Treat it as immutable.
type Secret string

// NewSecret draws a fresh secret from crypto/rand.
func NewSecret() (Secret, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate server secret: %w", err)
	}
	return Secret(hex.EncodeToString(b)), nil
}

// Bytes is used as the cookie signing key.
func (s Secret) Bytes() []byte { return []byte(s) }

// Authenticator verifies credentials for a single room. It is safe for
// concurrent use: all fields are set once in New.
type Authenticator struct {
	roomCode string
	token    string
}

func New(secret Secret, roomCode string) *Authenticator {
	sum := sha256.Sum256([]byte(string(secret) + roomCode))
	return &Authenticator{
		roomCode: roomCode,
		token:    hex.EncodeToString(sum[:]),
	}
}

// Required reports whether a room code is configured.
func (a *Authenticator) Required() bool { return a.roomCode != "" }

// DeriveToken returns the credential for this process and room code.
func (a *Authenticator) DeriveToken() string { return a.token }

// Verify accepts any candidate, including an empty one, when no room code is
// configured. Otherwise the candidate must equal DeriveToken.
func (a *Authenticator) Verify(candidate string) bool {
	if !a.Required() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(a.token)) == 1
}

// CheckRoomCode compares digests so the comparison time does not depend on
// the length of the configured code either.
func (a *Authenticator) CheckRoomCode(code string) bool {
	if !a.Required() {
		return true
	}
	got := sha256.Sum256([]byte(code))
	want := sha256.Sum256([]byte(a.roomCode))
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// Issue trades a room code for a credential.
func (a *Authenticator) Issue(code string) (string, error) {
	if !a.CheckRoomCode(code) {
		return "", domain.ErrUnauthorized
	}
	return a.token, nil
}
