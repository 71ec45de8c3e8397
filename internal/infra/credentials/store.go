package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

const (
	ProviderKie = "kie"
)

// Store reads and writes provider API keys kept in integration_tokens, so a
// key can be rotated without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) KieAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderKie)
}

// Token returns the enabled token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetKieAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("kie api key is required")
	}
	return s.upsert(ctx, ProviderKie, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// ResolveKieAPIKey prefers the configured key and falls back to the store.
func ResolveKieAPIKey(ctx context.Context, configured string, store *Store) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	if store == nil {
		return "", nil
	}
	return store.KieAPIKey(ctx)
}
