// Package null is a thin nullable-value wrapper around
// gopkg.in/guregu/null.v4, used wherever a config value is "present or
// not" (e.g. the optional finality confirmation count).
package null

import guregu "gopkg.in/guregu/null.v4"

// Int64 is an int64 that tracks whether it was ever set.
type Int64 struct {
	Int64 int64
	Valid bool
}

// NewInt64 constructs an Int64 with an explicit validity flag.
func NewInt64(i int64, valid bool) Int64 {
	return Int64{Int64: i, Valid: valid}
}

// Int64From constructs a valid Int64.
func Int64From(i int64) Int64 {
	return NewInt64(i, true)
}

// SetValid sets the value and marks it valid.
func (n *Int64) SetValid(i int64) {
	n.Int64 = i
	n.Valid = true
}

// Ptr returns nil if invalid, else a pointer to the value.
func (n Int64) Ptr() *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func (n Int64) guregu() guregu.Int {
	return guregu.NewInt(n.Int64, n.Valid)
}

// MarshalJSON defers to guregu.Int so invalid values round-trip as JSON
// null.
func (n Int64) MarshalJSON() ([]byte, error) {
	return n.guregu().MarshalJSON()
}

// UnmarshalJSON defers to guregu.Int.
func (n *Int64) UnmarshalJSON(data []byte) error {
	var g guregu.Int
	if err := g.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Int64, n.Valid = g.Int64, g.Valid
	return nil
}
