package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConnectivity    = errors.New("exchange connectivity")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMalformedSymbol = errors.New("malformed symbol")
	ErrEmptyBook       = errors.New("empty order book side")
	ErrNoStartingAsset = errors.New("no suitable starting asset")
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrUnsupportedPair = errors.New("pair not listed")
	ErrAlreadyRunning  = errors.New("scan already running")
	ErrNotRunning      = errors.New("scan not running")
)

// ConnectivityError is returned by exchange connectors for any failed call.
// errors.Is(err, ErrConnectivity) holds for every ConnectivityError.
type ConnectivityError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is matches ErrConnectivity.
func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

// NewConnectivityError wraps err for the given exchange operation.
func NewConnectivityError(exchange, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Exchange: exchange, Op: op, Err: err}
}

// FetchError reports that an order book could not be fetched for one pair
// after every attempt was used.
type FetchError struct {
	Pair     TradingPair
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch order book %s after %d attempt(s): %v", e.Pair, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
