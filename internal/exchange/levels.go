package exchange

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// ParseNumber converts an exchange decimal string. Empty strings are zero.
func ParseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("exchange: parse number %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// ParseLevel converts one price/volume string pair.
func ParseLevel(price, volume string) (domain.PriceLevel, error) {
	p, err := ParseNumber(price)
	if err != nil {
		return domain.PriceLevel{}, err
	}
	v, err := ParseNumber(volume)
	if err != nil {
		return domain.PriceLevel{}, err
	}
	return domain.PriceLevel{Price: p, Volume: v}, nil
}

// ParseLevels converts rows of [price, volume, ...] strings. At most depth
// rows are kept when depth is positive.
func ParseLevels(rows [][]string, depth int) ([]domain.PriceLevel, error) {
	if depth > 0 && len(rows) > depth {
		rows = rows[:depth]
	}
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("exchange: level has %d fields", len(row))
		}
		lvl, err := ParseLevel(row[0], row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, nil
}

// Classify wraps a failed connector call as a ConnectivityError, tagging
// rate limiting and auth failures by HTTP status.
func Classify(exchangeID, op string, resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests, 418:
			err = fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			err = fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
	}
	return domain.NewConnectivityError(exchangeID, op, err)
}
