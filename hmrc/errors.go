package hmrc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mtd/core"
	"github.com/goliatone/go-mtd/transport"
)

// wireError is the authority's structured error body. A single rejection
// arrives as a bare {code, message}; a multi-failure arrives with the same
// top-level shape plus an errors array. Every entry is surfaced.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func apiError(operation string, response transport.Response) error {
	entries := parseErrorEntries(response.Body)

	category, textCode := classifyStatus(response.StatusCode)
	message := fmt.Sprintf("hmrc: %s rejected (%d)", operation, response.StatusCode)
	if len(entries) > 0 {
		message = fmt.Sprintf("%s: %s", message, summarizeEntries(entries))
	}

	err := goerrors.New(message, category).
		WithCode(response.StatusCode).
		WithTextCode(textCode)
	if len(entries) > 0 {
		err.WithMetadata(map[string]any{"api_errors": entries})
	}
	return err
}

func parseErrorEntries(body []byte) []core.APIErrorEntry {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	var decoded wireError
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}

	entries := []core.APIErrorEntry{}
	if len(decoded.Errors) > 0 {
		for _, entry := range decoded.Errors {
			entries = append(entries, core.APIErrorEntry{
				Code:    strings.TrimSpace(entry.Code),
				Message: strings.TrimSpace(entry.Message),
			})
		}
		return entries
	}
	if strings.TrimSpace(decoded.Code) == "" && strings.TrimSpace(decoded.Message) == "" {
		return nil
	}
	return append(entries, core.APIErrorEntry{
		Code:    strings.TrimSpace(decoded.Code),
		Message: strings.TrimSpace(decoded.Message),
	})
}

func summarizeEntries(entries []core.APIErrorEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.Code != "" && entry.Message != "":
			parts = append(parts, entry.Code+": "+entry.Message)
		case entry.Code != "":
			parts = append(parts, entry.Code)
		default:
			parts = append(parts, entry.Message)
		}
	}
	return strings.Join(parts, "; ")
}

func classifyStatus(status int) (goerrors.Category, string) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return goerrors.CategoryAuth, core.MTDErrorAuthRequired
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound, core.MTDErrorNotFound
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return goerrors.CategoryExternal, core.MTDErrorAPIRejected
	default:
		return goerrors.CategoryExternal, core.MTDErrorTransport
	}
}
