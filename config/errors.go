package config

import "errors"

// Static errors for the config package
var (
	ErrConfigNil                 = errors.New("config is nil")
	ErrConfigNotPointer          = errors.New("config must be a pointer")
	ErrConfigNotStruct           = errors.New("config must be a pointer to a struct")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrRequiredFieldMissing      = errors.New("required configuration field missing")
	ErrUnknownFormat             = errors.New("unknown configuration file format")
	ErrInvalidConfig             = errors.New("invalid configuration")
	ErrUnknownFallbackMode       = errors.New("fallback mode is not a known setup")
	ErrWatcherClosed             = errors.New("watcher closed")
)
