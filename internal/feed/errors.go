package feed

import "fmt"

// Reason classifies where a fetch failed.
type Reason string

const (
	ReasonRequest Reason = "request"
	ReasonStatus  Reason = "status"
	ReasonRead    Reason = "read"
	ReasonDecode  Reason = "decode"
)

// FetchError is the single failure kind of the price feed. Network errors,
// non-2xx responses and malformed bodies all surface as a FetchError.
type FetchError struct {
	Reason     Reason
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("price feed %s failed [%s] (HTTP %d): %v", e.Reason, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("price feed %s failed [%s]: %v", e.Reason, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
