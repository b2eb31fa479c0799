package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StageKey identifies one stage instance within a session.
// Occurrence 1 renders as the bare base key; later occurrences as "base:N".
type StageKey struct {
	Base       string
	Occurrence int
}

// String renders the textual key used at the serialization boundary
func (k StageKey) String() string {
	if k.Occurrence <= 1 {
		return k.Base
	}
	return k.Base + ":" + strconv.Itoa(k.Occurrence)
}

// IsSuffixed reports whether the key carries an occurrence suffix
func (k StageKey) IsSuffixed() bool {
	return k.Occurrence > 1
}

// ParseStageKey parses "BASE" or "BASE:N" (N >= 2)
func ParseStageKey(s string) (StageKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StageKey{}, fmt.Errorf("empty stage key")
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return StageKey{Base: s, Occurrence: 1}, nil
	}
	base, suffix := s[:idx], s[idx+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 2 || base == "" {
		return StageKey{}, fmt.Errorf("invalid stage key %q", s)
	}
	return StageKey{Base: base, Occurrence: n}, nil
}

// ExpandStageKeys assigns occurrence numbers to a possibly repeating list of
// base keys: ["TEST","DEV","TEST"] becomes TEST, DEV, TEST:2.
func ExpandStageKeys(bases []string) []StageKey {
	seen := make(map[string]int, len(bases))
	keys := make([]StageKey, 0, len(bases))
	for _, b := range bases {
		seen[b]++
		keys = append(keys, StageKey{Base: b, Occurrence: seen[b]})
	}
	return keys
}

// MarshalJSON encodes the key in its textual form
func (k StageKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the textual form
func (k *StageKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseStageKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
