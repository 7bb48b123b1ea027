package ratelimit

import "errors"

// ErrUnknownTier is returned by SetTier when the named tier is not in the
// catalog. The tenant's existing configuration is left untouched.
var ErrUnknownTier = errors.New("ratelimit: unknown tier")
