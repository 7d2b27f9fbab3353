package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-mtd/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore keeps at most one token row per profile key. Save replaces
// the row inside one transaction so readers never observe two tokens for
// a profile.
type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
}

func (s *TokenStore) Get(ctx context.Context, profileKey string) (core.Token, error) {
	if s == nil || s.repo == nil {
		return core.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	profileKey = strings.TrimSpace(profileKey)
	if profileKey == "" {
		return core.Token{}, fmt.Errorf("sqlstore: profile key is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("profile_key", "=", profileKey),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Token{}, err
	}
	if len(records) == 0 {
		return core.Token{}, core.ErrTokenNotFound
	}
	return records[0].toDomain(), nil
}

func (s *TokenStore) Save(ctx context.Context, token core.Token) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	profileKey := strings.TrimSpace(token.ProfileKey)
	if profileKey == "" {
		return fmt.Errorf("sqlstore: token profile key is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("sqlstore: token access token is required")
	}

	now := time.Now().UTC()
	record := &tokenRecord{
		ID:           uuid.NewString(),
		ProfileKey:   profileKey,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       append([]string{}, token.Scopes...),
		ExpiresAt:    token.ExpiresAt.UTC(),
		CreatedAt:    token.CreatedAt,
		UpdatedAt:    now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*tokenRecord)(nil)).
			Where("profile_key = ?", profileKey).
			Exec(ctx); err != nil {
			return err
		}
		_, err := s.repo.CreateTx(ctx, tx, record)
		return err
	})
}

func (s *TokenStore) Delete(ctx context.Context, profileKey string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	profileKey = strings.TrimSpace(profileKey)
	if profileKey == "" {
		return fmt.Errorf("sqlstore: profile key is required")
	}

	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("profile_key = ?", profileKey).
		Exec(ctx)
	return err
}
