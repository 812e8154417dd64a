package config

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrReadConfigFail    = errors.New("failed to read config file")
	ErrConfigParsingFail = errors.New("failed to parse config file")
)
