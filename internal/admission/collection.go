package admission

import "slices"

// Snapshot is one consistent computation of the derived views. Every slice in a
// snapshot was filtered from the same collection state.
type Snapshot struct {
	Files       []*FileRecord
	Valid       []*FileRecord
	Invalid     []*FileRecord
	Uploaded    []*FileRecord
	Deleted     []*FileRecord
	RequestSize int64
}

// Filter returns the records in the snapshot whose status shares a bit with mask,
// in collection order.
func (s *Snapshot) Filter(mask StatusType) []*FileRecord {
	return filterStatus(s.Files, mask)
}

// Collection is the ordered sequence of records owned by an Engine. It is not
// safe for concurrent use; the Engine serializes access.
type Collection struct {
	files    []*FileRecord
	snapshot *Snapshot
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	c := &Collection{}
	c.recompute()
	return c
}

// Len returns the number of records held.
func (c *Collection) Len() int { return len(c.files) }

// Contains reports whether the exact record is held.
func (c *Collection) Contains(r *FileRecord) bool {
	return slices.Contains(c.files, r)
}

// Append adds records at the end, oldest first.
func (c *Collection) Append(records ...*FileRecord) {
	if len(records) == 0 {
		return
	}
	c.files = append(c.files, records...)
	c.recompute()
}

// Remove drops every occurrence of r and reports whether any was found.
func (c *Collection) Remove(r *FileRecord) bool {
	n := len(c.files)
	c.files = slices.DeleteFunc(c.files, func(f *FileRecord) bool { return f == r })
	if len(c.files) == n {
		return false
	}
	c.recompute()
	return true
}

// SetStatus changes a record's status and refreshes the views.
func (c *Collection) SetStatus(r *FileRecord, s StatusType) {
	r.setStatus(s)
	c.recompute()
}

// Reset empties the collection.
func (c *Collection) Reset() {
	c.files = nil
	c.recompute()
}

// Snapshot returns the current derived views. The returned value must not be modified.
func (c *Collection) Snapshot() *Snapshot {
	return c.snapshot
}

func (c *Collection) recompute() {
	files := slices.Clone(c.files)
	valid := filterStatus(files, StatusValid)

	var size int64
	for _, r := range valid {
		size = addSize(size, r.Size())
	}

	c.snapshot = &Snapshot{
		Files:       files,
		Valid:       valid,
		Invalid:     filterStatus(files, StatusInvalid),
		Uploaded:    filterStatus(files, StatusUploaded),
		Deleted:     filterStatus(files, StatusDeleted),
		RequestSize: size,
	}
}

func filterStatus(files []*FileRecord, mask StatusType) []*FileRecord {
	out := []*FileRecord{}
	for _, f := range files {
		if f.Status().Has(mask) {
			out = append(out, f)
		}
	}
	return out
}

// addSize adds two sizes, saturating at Unbounded.
func addSize(a, b int64) int64 {
	if a == Unbounded || b == Unbounded || a > Unbounded-b {
		return Unbounded
	}
	return a + b
}
