package winmax4

import "fmt"

// ConnectionError is a transport-level failure (DNS, timeout, TLS). The pass
// that hit it aborts without advancing the watermark.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("winmax4 connection failed for %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ApiError is a structured error response from the ERP. Code is the value of
// Results[0].Code when the body carried one.
type ApiError struct {
	Status  int
	Code    string
	Message string
}

func (e *ApiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("winmax4 api error %d [%s]: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("winmax4 api error %d: %s", e.Status, e.Message)
}

// ValidationError rejects malformed caller input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ReconciliationConflict marks a remote record referencing a parent that is
// not locally known yet. The record is skipped, the pass continues.
type ReconciliationConflict struct {
	EntityType string
	Code       string
	Ref        string
}

func (e *ReconciliationConflict) Error() string {
	return fmt.Sprintf("%s %s references unknown %s", e.EntityType, e.Code, e.Ref)
}
