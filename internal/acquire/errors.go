package acquire

import "fmt"

// AcquisitionError reports a failed attachment download.
type AcquisitionError struct {
	TaskID string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire file for task %s from %s: %v", e.TaskID, e.URL, e.Err)
}

// Unwrap returns the underlying failure.
func (e *AcquisitionError) Unwrap() error { return e.Err }
