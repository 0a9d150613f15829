package numerator

import (
	"time"
)

// Record is the persisted state of one counter.
// Count is the last committed sequence value; the next number is Count+1.
type Record struct {
	Count     int64     `db:"last_value" json:"count"`
	Prefix    string    `db:"prefix" json:"prefix"`
	Separator string    `db:"separator" json:"separator"`
	Format    string    `db:"format" json:"format"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy safe to mutate.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Next returns a copy advanced by one, stamped with now.
func (r *Record) Next(now time.Time) *Record {
	c := r.Clone()
	c.Count++
	c.UpdatedAt = now
	return c
}

// NumberTemplate holds the rendering metadata for a document type.
type NumberTemplate struct {
	Prefix    string `json:"prefix"`
	Separator string `json:"separator"`
	Format    string `json:"format"`
}

// NewRecord creates a record with the given metadata and count.
func (t NumberTemplate) NewRecord(count int64, now time.Time) *Record {
	return &Record{
		Count:     count,
		Prefix:    t.Prefix,
		Separator: t.Separator,
		Format:    t.Format,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
