package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use errors.Is().
var (
	// ErrNoStartURL is returned when no starting URL is specified.
	ErrNoStartURL = errors.New("no starting url specified: use --starting-url")

	// ErrInvalidStartURL is returned when the starting URL is not an absolute http(s) URL.
	ErrInvalidStartURL = errors.New("invalid starting url: must be an absolute http or https url")

	// ErrInvalidMaxLinks is returned when the page budget is not positive.
	ErrInvalidMaxLinks = errors.New("invalid max links: must be positive")

	// ErrInvalidMaxImages is returned when the image budget is negative.
	ErrInvalidMaxImages = errors.New("invalid max images: must be non-negative")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the politeness delay or idle wait is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoImageDir is returned when the image directory is empty.
	ErrNoImageDir = errors.New("no image directory specified")

	// ErrNoLinksJSON is returned when the graph output path is empty.
	ErrNoLinksJSON = errors.New("no links json path specified")

	// ErrConflictingProxy is returned when both --proxy and --tor are specified.
	ErrConflictingProxy = errors.New("conflicting proxy options: --proxy and --tor cannot be used together")
)
