package annotate

import "errors"

// ErrNotConfigured is returned when annotation operations are attempted
// but no annotation source has been configured.
var ErrNotConfigured = errors.New("annotation source not configured")
