package pdu

import "errors"

var (
	ErrInvalidSSN            = errors.New("pdu: identifier must be exactly 12 bytes")
	ErrFieldTooLong          = errors.New("pdu: field longer than 255 bytes")
	ErrDuplicateDiscriminant = errors.New("pdu: duplicate discriminant")
	ErrNilDecoder            = errors.New("pdu: entry has no decoder")
	ErrNotIPv4               = errors.New("pdu: address is not ipv4")
)
