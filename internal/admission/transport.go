package admission

import "context"

// Transport sends the files of one upload request.
type Transport interface {
	Upload(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Upload(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Request describes one upload of the engine's valid files.
type Request struct {
	// SessionID identifies the engine that issued the request; empty for
	// engines created without one.
	SessionID     string
	URL           string
	Method        string
	IncludeHeader bool
	UseArray      bool
	Files         []*FileRecord
	// Size is the summed size of Files, Unbounded if any size is unknown.
	Size int64
	// Progress receives the completed percentage, 0 to 100. It is never nil.
	Progress func(percent float64)
}

// FieldName returns the multipart field the files are sent under.
func (r *Request) FieldName() string {
	if r.UseArray {
		return "file[]"
	}
	return "file"
}

// Response reports which files the receiver stored and which it refused.
// Files listed in neither keep their status.
type Response struct {
	Files    []*FileRecord
	Rejected []*FileRecord
}
