package routing

import "fmt"

// UnresolvableDestinationError means a rule matched but its container key
// has no configured value.
type UnresolvableDestinationError struct {
	BlobName     string
	ContainerKey string
	Err          error
}

func (e *UnresolvableDestinationError) Error() string {
	return fmt.Sprintf("no archive container configured for key %s (blob %s): %s", e.ContainerKey, e.BlobName, e.Err)
}

func (e *UnresolvableDestinationError) Unwrap() error {
	return e.Err
}
