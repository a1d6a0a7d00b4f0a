package feeders

import (
	"errors"
	"fmt"
)

// Static error definitions for feeders
var (
	ErrFeederPathEmpty    = errors.New("feeder path is empty")
	ErrFeederRead         = errors.New("failed to read configuration source")
	ErrFeederDecode       = errors.New("failed to decode configuration source")
	ErrDotEnvInvalidLine  = errors.New("invalid .env line format")
	ErrUnsupportedKeyType = errors.New("unsupported map key type")
	ErrUnknownFileFormat  = errors.New("unknown configuration file format")
)

func wrapReadError(path string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrFeederRead, path, err)
}

func wrapDecodeError(format, path string, err error) error {
	return fmt.Errorf("%w (%s) %s: %w", ErrFeederDecode, format, path, err)
}
