// Package parser converts raw payloads from the external services (the
// object detector and the extraction model) into core types.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned when a payload cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed response")

// Parser is stateless apart from its logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser. A nil logger discards output.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Parser{logger: logger}
}

// parseNumber accepts a JSON number or a quoted number ("12.5").
// Model output is not consistent about which it emits.
func parseNumber(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("parseNumber: empty value")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		s = strings.ReplaceAll(strings.TrimSpace(str), ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parseNumber: %q: %w", s, err)
	}
	return f, nil
}
