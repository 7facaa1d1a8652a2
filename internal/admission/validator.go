package admission

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// MimeType is one entry of the allowed content type list: either an exact
// string or a regular expression pattern.
type MimeType struct {
	text    string
	pattern *regexp.Regexp
	// loose is text compiled as an unanchored expression, used for exact
	// entries once the list is evaluated in pattern mode. Nil if text is not a
	// valid expression.
	loose *regexp.Regexp
}

// Exact returns an entry that matches its text verbatim.
func Exact(contentType string) MimeType {
	loose, _ := regexp.Compile(contentType)
	return MimeType{text: contentType, loose: loose}
}

// Pattern returns an entry matching any content type the expression matches.
func Pattern(re *regexp.Regexp) MimeType {
	return MimeType{text: re.String(), pattern: re}
}

// MustPattern compiles expr and panics if it is invalid.
func MustPattern(expr string) MimeType {
	return Pattern(regexp.MustCompile(expr))
}

// ParseMimeType reads "/expr/" as a pattern and anything else as an exact entry.
// A trailing "i" flag ("/expr/i") makes the pattern case-insensitive.
func ParseMimeType(value string) (MimeType, error) {
	value = strings.TrimSpace(value)
	if len(value) > 2 && strings.HasPrefix(value, "/") {
		expr, flags := value[1:], ""
		if strings.HasSuffix(expr, "/i") {
			expr, flags = strings.TrimSuffix(expr, "/i"), "(?i)"
		} else if strings.HasSuffix(expr, "/") {
			expr = strings.TrimSuffix(expr, "/")
		} else {
			return Exact(value), nil
		}
		re, err := regexp.Compile(flags + expr)
		if err != nil {
			return MimeType{}, fmt.Errorf("invalid mime type pattern %q: %w", value, err)
		}
		return Pattern(re), nil
	}
	return Exact(value), nil
}

// ParseMimeTypes parses every value with ParseMimeType.
func ParseMimeTypes(values []string) ([]MimeType, error) {
	out := make([]MimeType, 0, len(values))
	for _, v := range values {
		mt, err := ParseMimeType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

// IsPattern reports whether the entry is a regular expression.
func (m MimeType) IsPattern() bool { return m.pattern != nil }

// String returns the entry in the form ParseMimeType accepts.
func (m MimeType) String() string {
	if m.pattern != nil {
		return "/" + m.text + "/"
	}
	return m.text
}

func (m MimeType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MimeType) UnmarshalText(text []byte) error {
	parsed, err := ParseMimeType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m MimeType) matches(contentType string) bool {
	if m.pattern != nil {
		return m.pattern.MatchString(contentType)
	}
	if m.text == contentType {
		return true
	}
	return m.loose != nil && m.loose.MatchString(contentType)
}

// ContentTypeAllowed checks contentType against the allowed list. Without any
// pattern entry this is plain membership. A single pattern entry switches the
// whole list to pattern evaluation, where exact entries also match as
// unanchored expressions.
func ContentTypeAllowed(contentType string, allowed []MimeType) bool {
	if !slices.ContainsFunc(allowed, MimeType.IsPattern) {
		return slices.ContainsFunc(allowed, func(m MimeType) bool {
			return m.text == contentType
		})
	}
	return slices.ContainsFunc(allowed, func(m MimeType) bool {
		return m.matches(contentType)
	})
}

// SizeAllowed reports whether size fits under maximum. Unbounded sizes only fit
// an Unbounded maximum.
func SizeAllowed(size, maximum int64) bool {
	return size <= maximum
}

// IsAdmissible reports whether record passes both the content type and the size check.
func IsAdmissible(record *FileRecord, opts Options) bool {
	return Explain(record, opts).Admissible()
}

// Verdict holds the outcome of each admission check.
type Verdict struct {
	ContentTypeOK bool
	SizeOK        bool
}

// Explain runs both checks independently.
func Explain(record *FileRecord, opts Options) Verdict {
	return Verdict{
		ContentTypeOK: ContentTypeAllowed(record.ContentType(), opts.MimeTypes),
		SizeOK:        SizeAllowed(record.Size(), opts.MaximumSize),
	}
}

// Admissible reports whether every check passed.
func (v Verdict) Admissible() bool {
	return v.ContentTypeOK && v.SizeOK
}

// Reason names the first failed check, content type before size, or "" when
// the verdict is admissible.
func (v Verdict) Reason() string {
	switch {
	case !v.ContentTypeOK:
		return "content_type"
	case !v.SizeOK:
		return "size"
	default:
		return ""
	}
}
