package pipeline

import (
	"encoding/json"
	"fmt"
)

// ProjectDescriptor is a normalized remote business project record. Raw
// keeps the untouched payload for callers that need passthrough fields.
type ProjectDescriptor struct {
	ID   string
	Name string
	Raw  map[string]any
}

// normalizeProject maps a raw project payload onto a descriptor, falling
// back through the alternate field names different platform versions use.
func normalizeProject(raw map[string]any) ProjectDescriptor {
	desc := ProjectDescriptor{Raw: raw}
	desc.ID = firstString(raw, "businessProjectId", "projectId", "id")
	desc.Name = firstString(raw, "businessProjectName", "projectName", "name")
	return desc
}

// firstString returns the first present, non-empty field rendered as a
// string. Numeric ids come back as JSON numbers, so both forms are handled.
func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return trimFloat(v)
		}
	}
	return ""
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%v", v)
}
