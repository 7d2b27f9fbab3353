package query

import (
	"context"

	"github.com/goliatone/go-mtd/core"
)

// ReadingService is the read surface the queries consume. The core
// service satisfies it.
type ReadingService interface {
	GetObligations(ctx context.Context, profileKey string, filter core.ObligationFilter) ([]core.Obligation, error)
	Status(ctx context.Context, profileKey string) (core.TokenStatus, error)
}

type ListObligationsQuery struct {
	reader ReadingService
}

func NewListObligationsQuery(reader ReadingService) *ListObligationsQuery {
	return &ListObligationsQuery{reader: reader}
}

func (q *ListObligationsQuery) Query(ctx context.Context, msg ListObligationsMessage) ([]core.Obligation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: obligations reader is required")
	}
	return q.reader.GetObligations(ctx, msg.ProfileKey, core.ObligationFilter{
		Status: core.ObligationStatus(msg.Status),
		From:   msg.From,
		To:     msg.To,
	})
}

type TokenStatusQuery struct {
	reader ReadingService
}

func NewTokenStatusQuery(reader ReadingService) *TokenStatusQuery {
	return &TokenStatusQuery{reader: reader}
}

func (q *TokenStatusQuery) Query(ctx context.Context, msg TokenStatusMessage) (core.TokenStatus, error) {
	if q == nil || q.reader == nil {
		return core.TokenStatus{}, queryDependencyError("query: token reader is required")
	}
	return q.reader.Status(ctx, msg.ProfileKey)
}
