package coverage

import "errors"

var (
	ErrUnauthorized      = errors.New("coverage: unauthorized")
	ErrNotFound          = errors.New("coverage: insurance not found")
	ErrAlreadyInUse      = errors.New("coverage: id already in use")
	ErrEmptyBalance      = errors.New("coverage: send some funds")
	ErrNotInWhitelist    = errors.New("coverage: token not in whitelist")
	ErrExpired           = errors.New("coverage: insurance is expired")
	ErrRecipientNotSet   = errors.New("coverage: recipient is not set")
	ErrInsufficientCover = errors.New("coverage: coverage pool cannot cover amount")
	ErrInvalidAddress    = errors.New("coverage: invalid address")
	ErrInvalidID         = errors.New("coverage: invalid insurance id")
	ErrUnderflow         = errors.New("coverage: arithmetic underflow")
	ErrOverflow          = errors.New("coverage: arithmetic overflow")

	errNilState   = errors.New("coverage engine: state not configured")
	errNilArbiter = errors.New("coverage engine: arbiter not configured")
)
