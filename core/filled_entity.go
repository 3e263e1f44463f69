package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MemoryValue is one remembered value of an entity.
type MemoryValue struct {
	UserText    string         `json:"userText" yaml:"userText"`
	DisplayText string         `json:"displayText,omitempty" yaml:"displayText,omitempty"`
	BuiltinType string         `json:"builtinType,omitempty" yaml:"builtinType,omitempty"`
	Resolution  map[string]any `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Text returns the display text when set, the user text otherwise.
func (v MemoryValue) Text() string {
	if v.DisplayText != "" {
		return v.DisplayText
	}
	return v.UserText
}

// FilledEntity is an entity together with its remembered values.
type FilledEntity struct {
	EntityID string        `json:"entityId" yaml:"entityId"`
	Values   []MemoryValue `json:"values" yaml:"values"`
}

// ValueAsString renders the values as a friendly list ("a, b and c").
func (f FilledEntity) ValueAsString() string {
	var sb strings.Builder
	n := len(f.Values)
	for i, v := range f.Values {
		switch {
		case n != 1 && i == n-1:
			sb.WriteString(" and ")
		case i != 0:
			sb.WriteString(", ")
		}
		sb.WriteString(v.Text())
	}
	return sb.String()
}

// MemoryEntry is a named dump of one filled entity used for display.
type MemoryEntry struct {
	EntityName   string        `json:"entityName" yaml:"entityName"`
	EntityValues []MemoryValue `json:"entityValues" yaml:"entityValues"`
}

// FilledEntityMap maps entity names to their filled values. Keys are unique
// entity names. The zero value is not usable; use NewFilledEntityMap or make.
type FilledEntityMap map[string]FilledEntity

// NewFilledEntityMap returns an empty map.
func NewFilledEntityMap() FilledEntityMap { return FilledEntityMap{} }

// ParseFilledEntityMap decodes a serialized map.
func ParseFilledEntityMap(data string) (FilledEntityMap, error) {
	m := FilledEntityMap{}
	if data == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return FilledEntityMap{}, err
	}
	if m == nil {
		m = FilledEntityMap{}
	}
	return m, nil
}

// Serialize encodes the map as a single JSON document.
func (m FilledEntityMap) Serialize() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Remember stores value for name. Bucket entities append unless a value with
// the exact same user text exists; scalar entities replace their value.
func (m FilledEntityMap) Remember(name, id string, value MemoryValue, isBucket bool) {
	fe, ok := m[name]
	if !ok {
		fe = FilledEntity{EntityID: id, Values: []MemoryValue{}}
	}
	if isBucket {
		for _, v := range fe.Values {
			if v.UserText == value.UserText {
				m[name] = fe
				return
			}
		}
		fe.Values = append(fe.Values, value)
	} else {
		fe.Values = []MemoryValue{value}
	}
	m[name] = fe
}

// RememberMany applies Remember for each value in order.
func (m FilledEntityMap) RememberMany(name, id string, values []MemoryValue, isBucket bool) {
	for _, v := range values {
		m.Remember(name, id, v, isBucket)
	}
}

// Forget removes values from name. For buckets with a value, the first
// case-insensitive match is removed and the key is dropped once empty. A
// bucket without a value, or any scalar, drops the key.
func (m FilledEntityMap) Forget(name, value string, isBucket bool) {
	fe, ok := m[name]
	if !ok {
		return
	}
	if !isBucket || value == "" {
		delete(m, name)
		return
	}
	want := normalize(value)
	for i, v := range fe.Values {
		if normalize(v.UserText) != want {
			continue
		}
		fe.Values = append(fe.Values[:i:i], fe.Values[i+1:]...)
		if len(fe.Values) == 0 {
			delete(m, name)
		} else {
			m[name] = fe
		}
		return
	}
}

// ValueAsString renders the values of name, reporting whether it is set.
func (m FilledEntityMap) ValueAsString(name string) (string, bool) {
	fe, ok := m[name]
	if !ok {
		return "", false
	}
	return fe.ValueAsString(), true
}

// ValueAsList returns the user texts of name.
func (m FilledEntityMap) ValueAsList(name string) []string {
	fe, ok := m[name]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(fe.Values))
	for _, v := range fe.Values {
		out = append(out, v.UserText)
	}
	return out
}

// ValueAsPrebuilt returns a copy of the raw memory values of name.
func (m FilledEntityMap) ValueAsPrebuilt(name string) []MemoryValue {
	fe, ok := m[name]
	if !ok {
		return []MemoryValue{}
	}
	out := make([]MemoryValue, len(fe.Values))
	copy(out, fe.Values)
	return out
}

// ValueAsNumber parses the value of name as a number.
func (m FilledEntityMap) ValueAsNumber(name string) (float64, bool) {
	s, ok := m.ValueAsString(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ValueAsBoolean parses the value of name as "true" or "false".
func (m FilledEntityMap) ValueAsBoolean(name string) (bool, bool) {
	s, ok := m.ValueAsString(name)
	if !ok {
		return false, false
	}
	switch normalize(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ValueAsObject decodes the JSON value of name into out. It reports false
// when the entity is unset.
func (m FilledEntityMap) ValueAsObject(name string, out any) (bool, error) {
	s, ok := m.ValueAsString(name)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return true, fmt.Errorf("decode entity %s: %w", name, err)
	}
	return true, nil
}

// Names returns the entity names in sorted order.
func (m FilledEntityMap) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FilledEntities returns the filled entities ordered by entity name.
func (m FilledEntityMap) FilledEntities() []FilledEntity {
	out := make([]FilledEntity, 0, len(m))
	for _, name := range m.Names() {
		out = append(out, m[name])
	}
	return out
}

// Dump returns named entries ordered by entity name.
func (m FilledEntityMap) Dump() []MemoryEntry {
	out := make([]MemoryEntry, 0, len(m))
	for _, name := range m.Names() {
		out = append(out, MemoryEntry{EntityName: name, EntityValues: m.ValueAsPrebuilt(name)})
	}
	return out
}

// Clone returns a deep copy safe for independent mutation.
func (m FilledEntityMap) Clone() FilledEntityMap {
	out := make(FilledEntityMap, len(m))
	for k, fe := range m {
		values := make([]MemoryValue, len(fe.Values))
		copy(values, fe.Values)
		out[k] = FilledEntity{EntityID: fe.EntityID, Values: values}
	}
	return out
}

// FilledEntityMapFrom builds a name keyed map from filled entities using the
// definitions to resolve names. Entities without a definition are skipped.
func FilledEntityMapFrom(filled []FilledEntity, defs Definitions) FilledEntityMap {
	m := FilledEntityMap{}
	for _, fe := range filled {
		if e, ok := defs.EntityByID(fe.EntityID); ok {
			m[e.Name] = fe
		}
	}
	return m
}

var (
	entityRefPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_-]*)`)
	optionalPattern  = regexp.MustCompile(`\[([^\[\]]*)\]`)
	spacePattern     = regexp.MustCompile(`[ \t]{2,}`)
)

// SubstituteEntities replaces $name references with the entity values.
// References to unset entities are left untouched.
func (m FilledEntityMap) SubstituteEntities(text string) string {
	return entityRefPattern.ReplaceAllStringFunc(text, func(ref string) string {
		if v, ok := m.ValueAsString(ref[1:]); ok {
			return v
		}
		return ref
	})
}

// Substitute renders a payload. Bracketed segments are optional: a segment
// is dropped when any entity it references is unset and is kept without its
// brackets otherwise. Remaining references are then substituted.
func (m FilledEntityMap) Substitute(text string) string {
	text = optionalPattern.ReplaceAllStringFunc(text, func(seg string) string {
		inner := seg[1 : len(seg)-1]
		for _, ref := range entityRefPattern.FindAllStringSubmatch(inner, -1) {
			if _, ok := m[ref[1]]; !ok {
				return ""
			}
		}
		return inner
	})
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(m.SubstituteEntities(text))
}

// PrebuiltDisplayText derives the display text of a prebuilt entity value
// from its resolution, falling back to the raw text.
func PrebuiltDisplayText(builtinType string, resolution map[string]any, text string) string {
	if resolution == nil {
		return text
	}
	if strings.HasPrefix(builtinType, "builtin.datetimeV2") {
		if values, ok := resolution["values"].([]any); ok && len(values) > 0 {
			if first, ok := values[0].(map[string]any); ok {
				if v, ok := first["value"]; ok {
					return fmt.Sprint(v)
				}
			}
		}
		return text
	}
	if v, ok := resolution["value"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return text
}
