package admission

import (
	"net/http"
	"slices"
)

// MimeMode selects how SetMimeTypes combines new entries with the current list.
type MimeMode int

const (
	// MimeAppend adds entries after the existing ones.
	MimeAppend MimeMode = iota
	// MimeReplace empties the list before adding entries.
	MimeReplace
)

// Options holds the admission rules and upload request settings of one engine.
type Options struct {
	RequestMethod string
	// MaximumSize is inclusive; Unbounded disables the ceiling and zero
	// admits only empty files.
	MaximumSize   int64
	IncludeHeader bool
	UseArray      bool
	MimeTypes     []MimeType
}

// DefaultMimeTypes returns a fresh copy of the common image types accepted by default.
func DefaultMimeTypes() []MimeType {
	return []MimeType{
		Exact("image/jpeg"),
		Exact("image/jpg"),
		Exact("image/gif"),
		Exact("image/png"),
		Exact("image/tiff"),
		Exact("image/bmp"),
	}
}

// DefaultOptions returns newly allocated default options.
func DefaultOptions() Options {
	return Options{
		RequestMethod: http.MethodPost,
		MaximumSize:   Unbounded,
		IncludeHeader: true,
		UseArray:      false,
		MimeTypes:     DefaultMimeTypes(),
	}
}

// Clone returns a copy that shares no slices with o.
func (o Options) Clone() Options {
	o.MimeTypes = slices.Clone(o.MimeTypes)
	return o
}

// withDefaults fills zero-valued fields an engine cannot work without.
func (o Options) withDefaults() Options {
	if o.RequestMethod == "" {
		o.RequestMethod = http.MethodPost
	}
	if o.MaximumSize < 0 {
		o.MaximumSize = Unbounded
	}
	return o
}
