package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MTDErrorBadInput           = "MTD_BAD_INPUT"
	MTDErrorConfigInvalid      = "MTD_CONFIG_INVALID"
	MTDErrorAuthRequired       = "MTD_AUTH_REQUIRED"
	MTDErrorInvalidGrant       = "MTD_AUTH_INVALID_GRANT"
	MTDErrorStateInvalid       = "MTD_AUTH_STATE_INVALID"
	MTDErrorStorageFailed      = "MTD_STORAGE_FAILED"
	MTDErrorAPIRejected        = "MTD_API_REJECTED"
	MTDErrorNotFound           = "MTD_NOT_FOUND"
	MTDErrorReceiptNotRecorded = "MTD_RECEIPT_NOT_RECORDED"
	MTDErrorSubmitLocked       = "MTD_SUBMIT_LOCKED"
	MTDErrorTransport          = "MTD_TRANSPORT_FAILED"
	MTDErrorInternal           = "MTD_INTERNAL_ERROR"
)

// APIErrorEntry is one {code, message} pair from the authority's structured
// error body. A rejection may carry several; all are surfaced.
type APIErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mtdErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMTDErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "invalid_request"):
		return newMTDError(err.Error(), goerrors.CategoryAuth, MTDErrorInvalidGrant)
	case strings.Contains(msg, "oauth state"), strings.Contains(msg, "callback state"):
		return newMTDError(err.Error(), goerrors.CategoryAuth, MTDErrorStateInvalid)
	case strings.Contains(msg, "token not found"), strings.Contains(msg, "authorization required"):
		return newMTDError(err.Error(), goerrors.CategoryAuth, MTDErrorAuthRequired)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "submission in progress"):
		return newMTDError(err.Error(), goerrors.CategoryConflict, MTDErrorSubmitLocked)
	case strings.Contains(msg, "no un-submitted return"), strings.Contains(msg, "no obligation found"):
		return newMTDError(err.Error(), goerrors.CategoryNotFound, MTDErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newMTDError(err.Error(), goerrors.CategoryBadInput, MTDErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMTDErrorEnvelope(mapped)
}

func newMTDError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMTDErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureMTDErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = mtdHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMTDTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMTDTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MTDErrorBadInput
	case goerrors.CategoryNotFound:
		return MTDErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return MTDErrorAuthRequired
	case goerrors.CategoryConflict:
		return MTDErrorSubmitLocked
	case goerrors.CategoryExternal:
		return MTDErrorTransport
	case goerrors.CategoryOperation:
		return MTDErrorStorageFailed
	default:
		return MTDErrorInternal
	}
}

func mtdHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsAuthRequired reports whether err means the authorization-code flow must
// be (re)started before API calls can proceed.
func IsAuthRequired(err error) bool {
	return hasTextCode(err, MTDErrorAuthRequired) || hasTextCode(err, MTDErrorInvalidGrant)
}

// IsReceiptNotRecorded reports whether err marks a filing that succeeded
// remotely but could not be recorded locally. This is never a submission
// failure; the return has legally been filed.
func IsReceiptNotRecorded(err error) bool {
	return hasTextCode(err, MTDErrorReceiptNotRecorded)
}

// APIErrors extracts the authority's structured rejection entries from err,
// if any were attached.
func APIErrors(err error) []APIErrorEntry {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}
	entries, ok := richErr.Metadata["api_errors"].([]APIErrorEntry)
	if !ok {
		return nil
	}
	return append([]APIErrorEntry(nil), entries...)
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}
