package variant

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Data is the auxiliary key-value store attached to a variant. Providers use
// it to carry opaque metadata (model ids, scores, source positions) through
// the session without the engine interpreting it.
//
// The store is a JSON document addressed with gjson path syntax. Data is
// immutable; Set and Delete return a new value.
type Data struct {
	raw string
}

// NewData creates a store from a JSON object. An empty string yields an
// empty store. Invalid JSON is rejected.
func NewData(raw string) (Data, error) {
	if raw == "" {
		return Data{}, nil
	}
	if !gjson.Valid(raw) {
		return Data{}, ErrInvalidData
	}
	return Data{raw: raw}, nil
}

// Get returns the value at path.
func (d Data) Get(path string) gjson.Result {
	if d.raw == "" {
		return gjson.Result{}
	}
	return gjson.Get(d.raw, path)
}

// Has reports whether a value exists at path.
func (d Data) Has(path string) bool {
	return d.Get(path).Exists()
}

// Set returns a copy of the store with value written at path.
func (d Data) Set(path string, value any) (Data, error) {
	raw, err := sjson.Set(d.document(), path, value)
	if err != nil {
		return d, err
	}
	return Data{raw: raw}, nil
}

// Delete returns a copy of the store without the value at path.
func (d Data) Delete(path string) (Data, error) {
	if d.raw == "" {
		return d, nil
	}
	raw, err := sjson.Delete(d.raw, path)
	if err != nil {
		return d, err
	}
	return Data{raw: raw}, nil
}

// Raw returns the JSON document, "{}" when empty.
func (d Data) Raw() string {
	return d.document()
}

// IsEmpty reports whether the store holds no values.
func (d Data) IsEmpty() bool {
	if d.raw == "" {
		return true
	}
	empty := true
	gjson.Parse(d.raw).ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

func (d Data) document() string {
	if d.raw == "" {
		return "{}"
	}
	return d.raw
}
