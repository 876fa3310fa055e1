package polygon

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tradevault/marketpulse/pkg/models"
)

// ValidationError marks provider payloads that fail structural validation.
// It is logged and swallowed in the request path, never returned to callers
// of the public client operations.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %q", e.Field, e.Value)
}

// OCC-style option ticker: O:{UNDERLYING}{YYMMDD}{C|P}{strike x1000, 8 digits}
var optionTickerRe = regexp.MustCompile(`^O:([A-Z]{1,6})(\d{6})([CP])(\d{8})$`)

// ParsedOptionTicker is the decomposed form of a valid option ticker.
type ParsedOptionTicker struct {
	Underlying string
	Expiry     time.Time
	Type       models.OptionType
	Strike     float64
}

// ParseOptionTicker validates and decomposes an option contract ticker.
func ParseOptionTicker(ticker string) (*ParsedOptionTicker, error) {
	m := optionTickerRe.FindStringSubmatch(ticker)
	if m == nil {
		return nil, &ValidationError{Field: "option_ticker", Value: ticker}
	}

	expiry, err := time.Parse("060102", m[2])
	if err != nil {
		return nil, &ValidationError{Field: "option_expiry", Value: m[2]}
	}
	strikeThousandths, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "option_strike", Value: m[4]}
	}

	typ := models.OptionCall
	if m[3] == "P" {
		typ = models.OptionPut
	}
	return &ParsedOptionTicker{
		Underlying: m[1],
		Expiry:     expiry,
		Type:       typ,
		Strike:     float64(strikeThousandths) / 1000,
	}, nil
}
