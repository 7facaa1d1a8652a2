package admission

import (
	"fmt"
	"strings"
)

// StatusType is the lifecycle state of a FileRecord. The values are bit flags so
// views can filter with a mask, but a record only ever holds one of them.
type StatusType uint32

const (
	StatusNone     StatusType = 0
	StatusValid    StatusType = 1
	StatusInvalid  StatusType = 2
	StatusDeleted  StatusType = 4
	StatusUploaded StatusType = 8
	StatusFailed   StatusType = 16
)

var statusNames = []struct {
	status StatusType
	name   string
}{
	{StatusValid, "valid"},
	{StatusInvalid, "invalid"},
	{StatusDeleted, "deleted"},
	{StatusUploaded, "uploaded"},
	{StatusFailed, "failed"},
}

// Has reports whether s shares any bit with mask.
func (s StatusType) Has(mask StatusType) bool {
	return s&mask != 0
}

func (s StatusType) String() string {
	if s == StatusNone {
		return "none"
	}
	var parts []string
	for _, n := range statusNames {
		if s.Has(n.status) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("status(%d)", uint32(s))
	}
	return strings.Join(parts, "|")
}

// MarshalText encodes the status by name for JSON and msgpack payloads.
func (s StatusType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *StatusType) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a status name such as "valid" or a combination like "valid|invalid".
func ParseStatus(value string) (StatusType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == "none" {
		return StatusNone, nil
	}

	var out StatusType
	for _, part := range strings.Split(value, "|") {
		found := false
		for _, n := range statusNames {
			if n.name == part {
				out |= n.status
				found = true
				break
			}
		}
		if !found {
			return StatusNone, fmt.Errorf("unknown status %q", part)
		}
	}
	return out, nil
}
