package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SavedAtLayout is the ISO-8601 form written into the savedAt field.
const SavedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// PropertyID is the only field of a listing the store interprets.
// Listings coming from the catalog use integer ids, others use strings;
// both decode into the same value so 7 and "7" name the same listing.
type PropertyID string

func (id PropertyID) String() string { return string(id) }

func (id PropertyID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// MarshalJSON writes canonical integers ("7", "-3") as JSON numbers and
// everything else, including "007" and "+5", as strings.
func (id PropertyID) MarshalJSON() ([]byte, error) {
	if isCanonicalInteger(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *PropertyID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PropertyID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: id must be a string or an integer", ErrInvalidProperty)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("%w: id must be a string or an integer", ErrInvalidProperty)
	}
	*id = PropertyID(n.String())
	return nil
}

func isCanonicalInteger(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

// Property is a listing as the UI knows it. Everything except id and savedAt
// is carried through untouched in Fields.
type Property struct {
	ID      PropertyID
	SavedAt *time.Time
	Fields  map[string]json.RawMessage
}

func (p Property) Validate() error {
	if p.ID.IsZero() {
		return fmt.Errorf("%w: id is required", ErrInvalidProperty)
	}
	return nil
}

// WithSavedAt returns a copy stamped with t. Fields are shared, they are never mutated in place.
func (p Property) WithSavedAt(t time.Time) Property {
	ts := t.UTC().Truncate(time.Millisecond)
	p.SavedAt = &ts
	return p
}

func (p Property) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Fields)+2)
	for k, v := range p.Fields {
		out[k] = v
	}
	id, err := p.ID.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out["id"] = id
	if p.SavedAt != nil {
		ts, err := json.Marshal(p.SavedAt.UTC().Format(SavedAtLayout))
		if err != nil {
			return nil, err
		}
		out["savedAt"] = ts
	}
	return json.Marshal(out)
}

func (p *Property) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: expected a JSON object: %v", ErrInvalidProperty, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidProperty)
	}

	var parsed Property
	if idRaw, ok := raw["id"]; ok {
		if err := json.Unmarshal(idRaw, &parsed.ID); err != nil {
			return err
		}
		delete(raw, "id")
	}
	if tsRaw, ok := raw["savedAt"]; ok {
		var s string
		if err := json.Unmarshal(tsRaw, &s); err == nil && s != "" {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				parsed.SavedAt = &ts
			}
		}
		delete(raw, "savedAt")
	}
	parsed.Fields = raw
	*p = parsed
	return nil
}

// ParseProperty decodes and validates a single caller-supplied property.
func ParseProperty(data []byte) (Property, error) {
	var p Property
	if err := json.Unmarshal(data, &p); err != nil {
		if errors.Is(err, ErrInvalidProperty) {
			return Property{}, err
		}
		return Property{}, fmt.Errorf("%w: %v", ErrInvalidProperty, err)
	}
	if err := p.Validate(); err != nil {
		return Property{}, err
	}
	return p, nil
}

// DecodeSavedList reads a persisted savedProperties blob. A missing or null
// value is an empty list. Entries that are not valid properties, and later
// duplicates of an id, are dropped and reported back as skipped.
func DecodeSavedList(data []byte) (items []Property, skipped int, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Property{}, 0, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, 0, fmt.Errorf("saved list is not a JSON array: %w", err)
	}

	items = make([]Property, 0, len(entries))
	seen := make(map[PropertyID]struct{}, len(entries))
	for _, entry := range entries {
		p, err := ParseProperty(entry)
		if err != nil {
			skipped++
			continue
		}
		if _, dup := seen[p.ID]; dup {
			skipped++
			continue
		}
		seen[p.ID] = struct{}{}
		items = append(items, p)
	}
	return items, skipped, nil
}

// EncodeSavedList is the inverse of DecodeSavedList; an empty list encodes as [].
func EncodeSavedList(items []Property) ([]byte, error) {
	if items == nil {
		items = []Property{}
	}
	return json.Marshal(items)
}
