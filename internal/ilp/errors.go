package ilp

import "errors"

var (
	// ErrInvalidAddress is returned when an address fails the charset/length rules.
	ErrInvalidAddress = errors.New("ilp: invalid address")
	// ErrTruncated is returned when a declared length exceeds the remaining input.
	ErrTruncated = errors.New("ilp: truncated packet")
	// ErrTrailingData is returned when bytes remain after a packet's declared content.
	ErrTrailingData = errors.New("ilp: trailing data after packet")
	// ErrInvalidExpiry is returned when the expiry field does not parse to a valid instant.
	ErrInvalidExpiry = errors.New("ilp: invalid expiry")
	// ErrUnexpectedType is returned when a packet's type octet doesn't match the decoder called.
	ErrUnexpectedType = errors.New("ilp: unexpected packet type")
	// ErrInvalidLength is returned for a malformed OER length prefix.
	ErrInvalidLength = errors.New("ilp: invalid length prefix")
	// ErrDataTooLarge is returned when a variable-length field exceeds its bound.
	ErrDataTooLarge = errors.New("ilp: field too large")
	// ErrInvalidRejectCode is returned when a reject code isn't 1 uppercase letter + 2 digits.
	ErrInvalidRejectCode = errors.New("ilp: invalid reject code")
)
