package models

// Entry is one validated column assignment. Value is nil (clear the column),
// a string, a time.Time or a bool, matching the field's Kind.
type Entry struct {
	Field *Field
	Value any
}

// Set reports whether the entry assigns a non-null value.
func (e Entry) Set() bool {
	return e.Value != nil
}

// Patch is a validated partial update. Only the columns it names are touched.
type Patch struct {
	entries []Entry
}

// Empty reports whether the patch assigns nothing.
func (p Patch) Empty() bool {
	return len(p.entries) == 0
}

// Entries returns the assignments in registry order.
func (p Patch) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Columns returns the storage columns the patch touches.
func (p Patch) Columns() []string {
	cols := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		cols = append(cols, e.Field.Column)
	}
	return cols
}

// Value returns the assignment for a column.
func (p Patch) Value(column string) (any, bool) {
	for _, e := range p.entries {
		if e.Field.Column == column {
			return e.Value, true
		}
	}
	return nil, false
}

// Overrides returns the override assignments carrying a value.
func (p Patch) Overrides() []Entry {
	var out []Entry
	for _, e := range p.entries {
		if e.Field.IsOverride() && e.Set() {
			out = append(out, e)
		}
	}
	return out
}

// WithAttribution returns a copy of the patch where every set override also
// records actor in its attribution column.
func (p Patch) WithAttribution(actor string) Patch {
	out := Patch{entries: p.Entries()}
	if actor == "" {
		return out
	}
	for _, e := range p.Overrides() {
		out.entries = append(out.entries, Entry{Field: e.Field.By, Value: actor})
	}
	return out
}

// Revert returns a patch that sets every column p touches back to its value
// in before.
func (p Patch) Revert(before *Customer) Patch {
	out := Patch{entries: make([]Entry, 0, len(p.entries))}
	for _, e := range p.entries {
		out.entries = append(out.entries, Entry{Field: e.Field, Value: e.Field.value(before)})
	}
	return out
}

// Apply writes the patch onto c.
func (p Patch) Apply(c *Customer) {
	for _, e := range p.entries {
		e.Field.set(c, e.Value)
	}
}
