package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mtd/core"
)

var (
	_ gocmd.Querier[ListObligationsMessage, []core.Obligation] = (*ListObligationsQuery)(nil)
	_ gocmd.Querier[TokenStatusMessage, core.TokenStatus]      = (*TokenStatusQuery)(nil)
)
