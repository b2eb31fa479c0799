package common

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Issues accumulates the findings for one file
type Issues []ValidationIssue

func (is *Issues) Errorf(field, format string, args ...interface{}) {
	*is = append(*is, ValidationIssue{Type: IssueError, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (is *Issues) Warnf(field, format string, args ...interface{}) {
	*is = append(*is, ValidationIssue{Type: IssueWarn, Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateTimestampUTC checks an RFC3339Nano timestamp with a Z suffix
func ValidateTimestampUTC(value interface{}, field string, issues *Issues) {
	ts, ok := value.(string)
	if !ok || ts == "" {
		issues.Errorf(field, "timestamp must be a non-empty string")
		return
	}
	if !strings.HasSuffix(ts, "Z") {
		issues.Errorf(field, "timestamp must be UTC (end with Z)")
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		issues.Errorf(field, "invalid RFC3339Nano format: %v", err)
	}
}

// ValidateRequiredKeys checks that every required key is present
func ValidateRequiredKeys(data map[string]interface{}, required []string, issues *Issues) {
	for _, key := range required {
		if _, exists := data[key]; !exists {
			issues.Errorf(key, "missing required key: %s", key)
		}
	}
}

// ValidateMinInt checks that a JSON number is an integer of at least min
func ValidateMinInt(value interface{}, field string, min int, issues *Issues) {
	n, ok := value.(float64) // JSON numbers are float64
	if !ok || n != float64(int64(n)) {
		issues.Errorf(field, "must be an integer")
		return
	}
	if int(n) < min {
		issues.Errorf(field, "must be >= %d", min)
	}
}

// ValidateEnum checks that a string value is one of allowed
func ValidateEnum(value string, field string, allowed map[string]bool, issues *Issues) {
	if allowed[value] {
		return
	}
	list := make([]string, 0, len(allowed))
	for k := range allowed {
		list = append(list, k)
	}
	sort.Strings(list)
	issues.Errorf(field, "invalid value: %s (must be one of: %s)", value, strings.Join(list, "|"))
}
