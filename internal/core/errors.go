package core

import "errors"

// ErrOptionalMissing is returned by probes when an optional dependency is not installed.
var ErrOptionalMissing = errors.New("optional dependency not installed")
