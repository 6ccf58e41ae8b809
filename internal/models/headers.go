package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HeaderValue holds one or more values for a single header, in order of
// arrival. Order is significant for headers like References.
type HeaderValue []string

// MarshalJSON emits a bare string for a single value and an array when the
// header repeated. This matches the stored format: a scalar until the key
// repeats, a list from then on.
func (v HeaderValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// UnmarshalJSON accepts either a string or an array of strings.
func (v *HeaderValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = HeaderValue{single}
		return nil
	}

	var multiple []string
	if err := json.Unmarshal(data, &multiple); err != nil {
		return fmt.Errorf("header value must be a string or an array of strings: %w", err)
	}
	*v = multiple
	return nil
}

// Headers is a normalized header map. Keys for the recognized set are
// lower-cased at parse time; all other keys keep their original case.
type Headers map[string]HeaderValue

// Add appends a value for the given key, converting a scalar to an ordered
// list on the second occurrence.
func (h Headers) Add(key, value string) {
	h[key] = append(h[key], value)
}

// First returns the first value for the key, or "" when absent.
func (h Headers) First(key string) string {
	values := h[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Flatten joins all values for the key with the given separator, for
// display contexts where only a single string is usable.
func (h Headers) Flatten(key, separator string) string {
	return strings.Join(h[key], separator)
}
