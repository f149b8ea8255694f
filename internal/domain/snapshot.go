package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AnswerSnapshot is the wizard's answer store at one point in time: a
// section -> field -> value mapping. Snapshots built with NewSnapshot or any
// of the decoders carry every catalog field, so an absent answer is always
// an explicit Unanswered value. Accessors still tolerate missing keys.
type AnswerSnapshot struct {
	sections map[Section]map[string]Value
}

// NewSnapshot returns a snapshot shaped from the field catalog with every
// field unanswered.
func NewSnapshot() *AnswerSnapshot {
	s := &AnswerSnapshot{sections: make(map[Section]map[string]Value, len(Sections))}
	for _, section := range Sections {
		s.sections[section] = make(map[string]Value)
	}
	for _, ref := range Catalog {
		s.sections[ref.Section][ref.Name] = Zero(ref.Kind)
	}
	return s
}

// SnapshotFromMap overlays a generic section -> field -> value map onto a
// fully shaped snapshot. Values that cannot be coerced to their catalog kind
// are read as unanswered. Unknown fields are kept with an inferred kind.
func SnapshotFromMap(data map[string]any) *AnswerSnapshot {
	s := NewSnapshot()
	for sectionName, rawSection := range data {
		fields, ok := asStringMap(rawSection)
		if !ok {
			continue
		}
		for name, raw := range fields {
			s.SetField(Section(sectionName), name, raw)
		}
	}
	return s
}

// SnapshotFromJSON decodes a JSON object into a snapshot.
func SnapshotFromJSON(data []byte) (*AnswerSnapshot, error) {
	s := NewSnapshot()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SnapshotFromYAML decodes a YAML document into a snapshot.
func SnapshotFromYAML(data []byte) (*AnswerSnapshot, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot yaml: %w", err)
	}
	return SnapshotFromMap(raw), nil
}

// UnmarshalJSON overlays the decoded object onto a fully shaped snapshot.
func (s *AnswerSnapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to parse snapshot json: %w", err)
	}
	*s = *SnapshotFromMap(raw)
	return nil
}

// MarshalJSON encodes the snapshot in its wire form. Map keys are sorted by
// encoding/json, which makes the output canonical.
func (s *AnswerSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToMap())
}

// ToMap returns the snapshot as plain section -> field -> wire value maps.
func (s *AnswerSnapshot) ToMap() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.sections))
	for section, fields := range s.sections {
		m := make(map[string]any, len(fields))
		for name, v := range fields {
			m[name] = v.raw()
		}
		out[string(section)] = m
	}
	return out
}

// Hash returns the hex SHA-256 of the canonical JSON encoding.
func (s *AnswerSnapshot) Hash() string {
	data, err := s.MarshalJSON()
	if err != nil {
		// Wire values are nil, bool, string or []string; encoding cannot fail.
		panic(fmt.Sprintf("snapshot encoding failed: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy.
func (s *AnswerSnapshot) Clone() *AnswerSnapshot {
	c := &AnswerSnapshot{sections: make(map[Section]map[string]Value, len(s.sections))}
	for section, fields := range s.sections {
		m := make(map[string]Value, len(fields))
		for name, v := range fields {
			if v.List != nil {
				v.List = append([]string(nil), v.List...)
			}
			m[name] = v
		}
		c.sections[section] = m
	}
	return c
}

// Set stores a raw wire value for a catalog field and returns the snapshot
// so fixtures can be chained.
func (s *AnswerSnapshot) Set(ref FieldRef, raw any) *AnswerSnapshot {
	s.put(ref.Section, ref.Name, coerceValue(ref.Kind, raw))
	return s
}

// SetField stores a raw value by section and field name. Catalog fields are
// coerced to their declared kind.
func (s *AnswerSnapshot) SetField(section Section, name string, raw any) {
	if ref, ok := LookupField(section, name); ok {
		s.put(section, name, coerceValue(ref.Kind, raw))
		return
	}
	s.put(section, name, coerceValue(inferKind(raw), raw))
}

func (s *AnswerSnapshot) put(section Section, name string, v Value) {
	if s.sections == nil {
		s.sections = make(map[Section]map[string]Value)
	}
	fields, ok := s.sections[section]
	if !ok {
		fields = make(map[string]Value)
		s.sections[section] = fields
	}
	fields[name] = v
}

// Value returns the stored value, or the unanswered value of the field's
// kind when the key is missing.
func (s *AnswerSnapshot) Value(ref FieldRef) Value {
	if s == nil {
		return Zero(ref.Kind)
	}
	v, ok := s.sections[ref.Section][ref.Name]
	if !ok {
		return Zero(ref.Kind)
	}
	return v
}

// Answer returns the tri-state answer of a yes/no field.
func (s *AnswerSnapshot) Answer(ref FieldRef) Answer {
	return s.Value(ref).Answer
}

// Text returns the trimmed text of a field.
func (s *AnswerSnapshot) Text(ref FieldRef) string {
	return strings.TrimSpace(s.Value(ref).Text)
}

// Number parses a number-as-string field. ok is false when the field is
// empty or not a finite number.
func (s *AnswerSnapshot) Number(ref FieldRef) (float64, bool) {
	return parseNumber(s.Value(ref).Text)
}

// Date parses a date-as-string field.
func (s *AnswerSnapshot) Date(ref FieldRef) (time.Time, bool) {
	return parseDate(s.Value(ref).Text)
}

// List returns a copy of a multi-select field. It is never nil.
func (s *AnswerSnapshot) List(ref FieldRef) []string {
	return append([]string{}, s.Value(ref).List...)
}

// HasItem reports whether a multi-select field contains token.
func (s *AnswerSnapshot) HasItem(ref FieldRef, token string) bool {
	for _, item := range s.Value(ref).List {
		if item == token {
			return true
		}
	}
	return false
}

// IsAnswered reports whether a field carries an explicit, usable answer.
func (s *AnswerSnapshot) IsAnswered(ref FieldRef) bool {
	return s.Value(ref).IsAnswered()
}

func asStringMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}
