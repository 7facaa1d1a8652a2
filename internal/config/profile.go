package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/filedrop/backend/internal/admission"
	"gopkg.in/yaml.v3"
)

// Profile is the YAML admission profile applied to new drop sessions.
//
//	mimeTypes: [image/png, "/^video\\//i"]
//	maximumSize: 10MB
//	requestMethod: POST
//	includeHeader: true
//	useArray: false
type Profile struct {
	MimeTypes     []string `yaml:"mimeTypes"`
	MaximumSize   string   `yaml:"maximumSize"`
	RequestMethod string   `yaml:"requestMethod"`
	IncludeHeader *bool    `yaml:"includeHeader"`
	UseArray      *bool    `yaml:"useArray"`
}

// ParseSize parses a human readable byte size such as "10MB" or "1 GiB".
// Empty strings, "0" and "unlimited" mean no limit and return zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" || strings.EqualFold(s, "unlimited") {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(n), nil
}

// ParseLimit parses an admission size ceiling. Unlike ParseSize, "0" is a real
// ceiling that admits only empty files; empty strings and "unlimited" return
// admission.Unbounded.
func ParseLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unlimited") {
		return admission.Unbounded, nil
	}
	if s == "0" {
		return 0, nil
	}
	n, err := ParseSize(s)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LoadProfile reads a profile from path. A missing file yields the defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if _, err := p.Options(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Options converts the profile to engine options, starting from the defaults
// for every field the profile leaves out.
func (p *Profile) Options() (admission.Options, error) {
	opts := admission.DefaultOptions()

	if p.MimeTypes != nil {
		types, err := admission.ParseMimeTypes(p.MimeTypes)
		if err != nil {
			return opts, fmt.Errorf("profile mimeTypes: %w", err)
		}
		opts.MimeTypes = types
	}

	size, err := ParseLimit(p.MaximumSize)
	if err != nil {
		return opts, fmt.Errorf("profile maximumSize: %w", err)
	}
	opts.MaximumSize = size

	if p.RequestMethod != "" {
		opts.RequestMethod = strings.ToUpper(p.RequestMethod)
	}
	if p.IncludeHeader != nil {
		opts.IncludeHeader = *p.IncludeHeader
	}
	if p.UseArray != nil {
		opts.UseArray = *p.UseArray
	}
	return opts, nil
}
