package mtd

import (
	"fmt"

	mtdcommand "github.com/goliatone/go-mtd/command"
	mtdquery "github.com/goliatone/go-mtd/query"
)

// CommandQueryService is the combined surface the facade dispatches to.
type CommandQueryService interface {
	mtdcommand.MutatingService
	mtdquery.ReadingService
}

type Commands struct {
	BeginAuthorization    *mtdcommand.BeginAuthorizationCommand
	CompleteAuthorization *mtdcommand.CompleteAuthorizationCommand
	RefreshToken          *mtdcommand.RefreshTokenCommand
	SubmitReturn          *mtdcommand.SubmitReturnCommand
}

type Queries struct {
	ListObligations *mtdquery.ListObligationsQuery
	TokenStatus     *mtdquery.TokenStatusQuery
}

// Facade bundles the command and query handlers over one service instance.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("mtd: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginAuthorization:    mtdcommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: mtdcommand.NewCompleteAuthorizationCommand(service),
		RefreshToken:          mtdcommand.NewRefreshTokenCommand(service),
		SubmitReturn:          mtdcommand.NewSubmitReturnCommand(service),
	}
	facade.queries = Queries{
		ListObligations: mtdquery.NewListObligationsQuery(service),
		TokenStatus:     mtdquery.NewTokenStatusQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
