package rhythm

import "errors"

// ErrInvalidConfig is wrapped by every configuration error reported by
// [Config.Validate], [New] and [Pipeline.Run].
var ErrInvalidConfig = errors.New("rhythm: invalid config")
