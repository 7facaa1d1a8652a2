package admission

import (
	"errors"
	"fmt"
)

var (
	// ErrURLRequired is returned when an upload is requested and no URL was configured.
	ErrURLRequired = errors.New("upload url is required: configure a URL when constructing the engine")
	// ErrUploadInProgress rejects an upload while another one is in flight.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrNoTransport is returned when an upload is requested without a transport.
	ErrNoTransport = errors.New("no upload transport configured")
)

// ConfigurationError reports misuse of the engine configuration.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError wraps a failed upload request.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
