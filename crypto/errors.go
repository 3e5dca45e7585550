package crypto

import "errors"

// Key and signature errors
var (
	// ErrUnsupportedAlgorithm is returned when an algorithm code is unknown, or
	// the code is known but the requested keysize is not offered for it.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrMalformedKey is returned when a serialized key is missing a field,
	// carries a field of the wrong type, or holds numerically inconsistent
	// parameters.
	ErrMalformedKey = errors.New("malformed key")

	// ErrMalformedSignature is returned when a signature cannot be parsed into
	// the shape its algorithm expects. A well-formed signature that simply does
	// not verify is not an error.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrInvalidKeyState is returned when a key is asked to do something its
	// contents cannot support, such as signing after Zeroize.
	ErrInvalidKeyState = errors.New("invalid key state")
)
