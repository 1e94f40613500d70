package credential

import "errors"

// Verification errors. Callers must surface all of them as an
// authentication failure.
var (
	// ErrInvalid is returned for a token with a bad signature, an unexpected
	// algorithm or issuer, or missing claims.
	ErrInvalid = errors.New("invalid credential")

	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("credential expired")

	// ErrWrongKind is returned when an access token is presented where a
	// refresh token is expected, or the reverse.
	ErrWrongKind = errors.New("wrong credential kind")

	// ErrRevoked is returned when the token id is in the revocation store.
	ErrRevoked = errors.New("credential revoked")
)

// IsAuthError reports whether err is one of the verification errors.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrWrongKind) ||
		errors.Is(err, ErrRevoked)
}
