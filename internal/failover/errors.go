package failover

import "errors"

// ErrUnknownHost is returned when a move names a host identity that is not
// monitored.
var ErrUnknownHost = errors.New("unknown host")
