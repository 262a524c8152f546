// fingerprint.go generates stable hashes for grouping similar errors.

package aisen

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

// fingerprintFrames is the number of leading frames that contribute to the
// default fingerprint.
const fingerprintFrames = 3

// Fingerprint generates the default grouping key for an event.
// The fingerprint is based on:
//   - error_type, operation, agent_name, tool_name
//   - First 3 frames (function names only, normalized)
//
// It ignores variable data like timestamps, event IDs, messages,
// line numbers, and memory addresses. Parsed Frames take precedence over the
// raw StackTrace so that a backtrace filter also shapes grouping.
func Fingerprint(event ErrorEvent) string {
	parts := []string{
		event.ErrorType,
		event.Operation,
		event.AgentName,
		event.ToolName,
	}

	frames := event.Frames
	if len(frames) == 0 {
		frames = ParseStackTrace(event.StackTrace)
	}
	parts = append(parts, normalizeFrames(frames)...)

	hash := blake3.Sum256([]byte(strings.Join(parts, "|")))

	// Hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}

var (
	// Match function names like "main.doSomething" or "pkg/subpkg.Function"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./()*\[\]]+\.[a-zA-Z0-9_]+)`)

	// Match memory addresses like "0x1234abcd"
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// normalizeFrames returns up to fingerprintFrames function names, stripped
// of addresses and anything that does not look like a qualified name.
func normalizeFrames(frames []Frame) []string {
	var names []string
	for _, frame := range frames {
		name := strings.TrimSpace(memAddrPattern.ReplaceAllString(frame.Function, ""))
		if match := funcNamePattern.FindString(name); match != "" {
			names = append(names, match)
			if len(names) >= fingerprintFrames {
				break
			}
		}
	}
	return names
}
