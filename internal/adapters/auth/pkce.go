package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/bnema/terms-cli/internal/ports"
)

const PKCEChallengeMethodS256 = "S256"

type PKCEPair struct {
	Verifier  string
	Challenge string
}

func NewPKCEPair() (PKCEPair, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return PKCEPair{}, err
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)
	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return PKCEPair{
		Verifier:  verifier,
		Challenge: challenge,
	}, nil
}

// Challenges produces a fresh PKCE pair and state per browser login.
type Challenges struct{}

func (Challenges) NewChallenge() (ports.AuthorizationChallenge, error) {
	pair, err := NewPKCEPair()
	if err != nil {
		return ports.AuthorizationChallenge{}, fmt.Errorf("generate pkce: %w", err)
	}
	state, err := NewState()
	if err != nil {
		return ports.AuthorizationChallenge{}, fmt.Errorf("generate oauth state: %w", err)
	}
	return ports.AuthorizationChallenge{Verifier: pair.Verifier, Challenge: pair.Challenge, State: state}, nil
}
