package fetcher

import (
	"fmt"
	"time"

	"github.com/brettboylen/trend-whisperer/ratelimit"
)

// NetworkError reports a request that never produced a usable response: the proxy
// was unreachable, timed out, the circuit breaker was open, or it answered with a
// non-2xx status other than 429.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: proxy returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports a response whose body did not match the expected shape
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unexpected response format: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response format", e.Op)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RateLimitError reports an HTTP 429 from the proxy. It matches ratelimit.ErrRateLimited.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration // zero when the header was absent
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ratelimit.ErrRateLimited
}
