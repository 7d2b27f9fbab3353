package command

import (
	"fmt"
	"strings"
)

const (
	TypeBeginAuthorization    = "mtd.command.authorization.begin"
	TypeCompleteAuthorization = "mtd.command.authorization.complete"
	TypeRefreshToken          = "mtd.command.token.refresh"
	TypeSubmitReturn          = "mtd.command.return.submit"
)

type BeginAuthorizationMessage struct {
	ProfileKey string
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	return nil
}

type CompleteAuthorizationMessage struct {
	ProfileKey string
	Code       string
	State      string
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	if strings.TrimSpace(m.State) == "" {
		return fmt.Errorf("command: oauth state is required")
	}
	return nil
}

type RefreshTokenMessage struct {
	ProfileKey string
}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (m RefreshTokenMessage) Validate() error {
	return nil
}

type SubmitReturnMessage struct {
	ProfileKey string
	Year       int
	Period     int
}

func (SubmitReturnMessage) Type() string { return TypeSubmitReturn }

func (m SubmitReturnMessage) Validate() error {
	if m.Year <= 0 {
		return fmt.Errorf("command: year is required")
	}
	if m.Period <= 0 {
		return fmt.Errorf("command: period is required")
	}
	return nil
}
