package query

import (
	"fmt"
	"time"
)

const (
	TypeListObligations = "mtd.query.obligations.list"
	TypeTokenStatus     = "mtd.query.token.status"
)

type ListObligationsMessage struct {
	ProfileKey string
	Status     string
	From       *time.Time
	To         *time.Time
}

func (ListObligationsMessage) Type() string { return TypeListObligations }

func (m ListObligationsMessage) Validate() error {
	if m.From != nil && m.To != nil && m.To.Before(*m.From) {
		return fmt.Errorf("query: to must not precede from")
	}
	return nil
}

type TokenStatusMessage struct {
	ProfileKey string
}

func (TokenStatusMessage) Type() string { return TypeTokenStatus }

func (m TokenStatusMessage) Validate() error {
	return nil
}
