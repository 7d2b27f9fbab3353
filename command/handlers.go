package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mtd/core"
)

// MutatingService is the write surface the commands drive. The core
// service satisfies it.
type MutatingService interface {
	BeginAuthorization(ctx context.Context, profileKey string) (core.AuthorizationRedirect, error)
	CompleteAuthorization(ctx context.Context, profileKey, code, state string) (core.Token, error)
	EnsureFreshToken(ctx context.Context, profileKey string) (core.Token, error)
	Submit(ctx context.Context, profileKey string, year, period int) (core.SubmissionResult, error)
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.ProfileKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.ProfileKey, msg.Code, msg.State)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshTokenCommand struct {
	service MutatingService
}

func NewRefreshTokenCommand(service MutatingService) *RefreshTokenCommand {
	return &RefreshTokenCommand{service: service}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, msg RefreshTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	out, err := c.service.EnsureFreshToken(ctx, msg.ProfileKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitReturnCommand struct {
	service MutatingService
}

func NewSubmitReturnCommand(service MutatingService) *SubmitReturnCommand {
	return &SubmitReturnCommand{service: service}
}

func (c *SubmitReturnCommand) Execute(ctx context.Context, msg SubmitReturnMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.Submit(ctx, msg.ProfileKey, msg.Year, msg.Period)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
