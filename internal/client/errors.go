package client

import "fmt"

// UpstreamError is a non-2xx response from an external service. The status
// code and body are carried verbatim so the pipeline can surface the
// upstream message unchanged in the status slot.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Body)
}
