package probe

import "errors"

// ErrProbeFailure marks a user-defined probe that could not produce a
// value (file missing, command failed, env var unset with no default).
// It never aborts a collection cycle; the failing probe's CustomValue
// carries the failure message instead (spec.md §7).
var ErrProbeFailure = errors.New("probe: collection failed")

// ErrTransformFailure marks a value that failed the transform
// mini-language: a malformed expression, a type mismatch, or a use of an
// identifier other than x.
var ErrTransformFailure = errors.New("probe: transform failed")
