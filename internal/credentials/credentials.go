// Package credentials resolves the secrets used on behalf of a user.
package credentials

import (
	"context"
	"errors"
	"strings"
)

var ErrMissing = errors.New("credentials not configured")

type ExchangeKeys struct {
	APIKey    string
	APISecret string
}

type Provider interface {
	ExchangeKeys(ctx context.Context, userID uint64) (ExchangeKeys, error)
	AIKey(ctx context.Context, userID uint64) (string, error)
}

// Static serves one key set for every user, with optional per-user overrides.
type Static struct {
	Exchange ExchangeKeys
	OpenAI   string

	UserExchange map[uint64]ExchangeKeys
	UserOpenAI   map[uint64]string
}

func (s Static) ExchangeKeys(_ context.Context, userID uint64) (ExchangeKeys, error) {
	if keys, ok := s.UserExchange[userID]; ok && keys.APIKey != "" {
		return keys, nil
	}
	if strings.TrimSpace(s.Exchange.APIKey) == "" || strings.TrimSpace(s.Exchange.APISecret) == "" {
		return ExchangeKeys{}, ErrMissing
	}
	return s.Exchange, nil
}

func (s Static) AIKey(_ context.Context, userID uint64) (string, error) {
	if key, ok := s.UserOpenAI[userID]; ok && key != "" {
		return key, nil
	}
	if strings.TrimSpace(s.OpenAI) == "" {
		return "", ErrMissing
	}
	return s.OpenAI, nil
}
