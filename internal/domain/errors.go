package domain

import "errors"

var (
	// ErrInvalidQuoteAsset symbol quote is not one of the supported quote assets
	ErrInvalidQuoteAsset = errors.New("invalid quote asset")
	// ErrAlreadyExists subscriber name already registered
	ErrAlreadyExists = errors.New("already exists")
	// ErrPriceUnavailable no direct entry and triangulation could not resolve a leg
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrFeedExhausted max reconnect retries exceeded for a symbol
	ErrFeedExhausted = errors.New("feed exhausted")
	// ErrMalformedPayload raw feed payload could not be normalized
	ErrMalformedPayload = errors.New("malformed payload")
)
