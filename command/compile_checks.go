package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[RefreshTokenMessage]          = (*RefreshTokenCommand)(nil)
	_ gocmd.Commander[SubmitReturnMessage]          = (*SubmitReturnCommand)(nil)
)
