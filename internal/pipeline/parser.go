package pipeline

import (
	"regexp"
	"strconv"
)

// buildIDPattern matches the numeric build id the platform embeds in a
// pipeline-start conflict message, e.g.
//
//	"a running pipeline already exists, id: 4521"
//
// The contract is "id" followed by a colon and digits, case-insensitive,
// with optional whitespace. Anything else is unparseable and treated as an
// ordinary failure.
var buildIDPattern = regexp.MustCompile(`(?i)id[:：]\s*(\d+)`)

// ParseBuildID extracts the build id from a conflict message.
func ParseBuildID(message string) (int, bool) {
	match := buildIDPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}
	id, err := strconv.Atoi(match[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
