package devhub

import (
	"fmt"
	"time"
)

// UnavailableError is returned when a simulated backend refuses the connection.
type UnavailableError struct {
	Backend string
	Reason  string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s connection failed: %s", e.Backend, e.Reason)
}

// TimeoutError is returned when a simulated backend exceeds its deadline.
type TimeoutError struct {
	Backend string
	Target  string
	After   time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout: %s check exceeded %v", e.Backend, e.Target, e.After)
}
