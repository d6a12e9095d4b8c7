package engage

import "errors"

// ErrInvalidTarget is returned when the target URL cannot be parsed into
// an absolute http(s) URL with a host.
var ErrInvalidTarget = errors.New("engage: invalid target URL")

// ErrMissingMessage is returned when the outreach message has an empty body.
var ErrMissingMessage = errors.New("engage: message body is required")

// ErrUnknownProvider is returned at construction when the configured
// captcha solver provider name is not recognized.
var ErrUnknownProvider = errors.New("engage: unknown captcha solver provider")

// ErrEngineClosed is returned when an attempt is started after Close.
var ErrEngineClosed = errors.New("engage: engine is closed")
