package polygon

import (
	"regexp"
	"time"

	"github.com/rickgao/options-data/internal/model"
)

// ConvertTimestamp interprets a vendor timestamp as an instant. Nanosecond
// values are reduced to millisecond precision (divide by 10^6) before
// conversion; otherwise the value is taken as milliseconds.
func ConvertTimestamp(value int64, isNanoseconds bool) time.Time {
	ms := value
	if isNanoseconds {
		ms = value / 1_000_000
	}
	return time.UnixMilli(ms).UTC()
}

// ParseExpirationDate parses the vendor's YYYY-MM-DD expiration string to
// a UTC midnight instant.
func ParseExpirationDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

var (
	prefixedUnderlying = regexp.MustCompile(`^O:([A-Z]+)`)
	bareUnderlying     = regexp.MustCompile(`^([A-Z]+)`)
)

// ExtractUnderlyingTicker parses the underlying equity ticker out of an
// option ticker. Returns "" when the ticker has no recognizable leading
// letters; callers skip such tickers with a warning.
func ExtractUnderlyingTicker(optionTicker string) string {
	if m := prefixedUnderlying.FindStringSubmatch(optionTicker); m != nil {
		return m[1]
	}
	if m := bareUnderlying.FindStringSubmatch(optionTicker); m != nil {
		return m[1]
	}
	return ""
}

// ToModel converts a vendor contract to the stored entity. The expiration
// date string must be parseable.
func (c Contract) ToModel() (model.OptionContract, error) {
	exp, err := ParseExpirationDate(c.ExpirationDate)
	if err != nil {
		return model.OptionContract{}, err
	}
	return model.OptionContract{
		Ticker:            c.Ticker,
		UnderlyingTicker:  c.UnderlyingTicker,
		ContractType:      c.ContractType,
		ExerciseStyle:     c.ExerciseStyle,
		ExpirationDate:    exp,
		SharesPerContract: c.SharesPerContract,
		StrikePrice:       c.StrikePrice,
	}, nil
}
