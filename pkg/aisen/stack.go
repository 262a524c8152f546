// stack.go parses Go stack trace text into frames.

package aisen

import (
	"errors"
	"strconv"
	"strings"
)

// StackError is implemented by errors that carry the stack captured where
// they were created.
type StackError interface {
	error
	Stack() []byte
}

// internalFramePrefixes identify frames produced by the capture machinery
// itself. They are trimmed from the top of a parsed backtrace.
var internalFramePrefixes = []string{
	"runtime/debug.Stack",
	"runtime.gopanic",
	"runtime.panicmem",
	"runtime.sigpanic",
	"github.com/strongdm/aisen-agent/pkg/aisen.NewErrorEvent",
	"github.com/strongdm/aisen-agent/pkg/aisen.Recover",
	"github.com/strongdm/aisen-agent/pkg/aisen/agent.(*Agent).Notify",
	"github.com/strongdm/aisen-agent/pkg/aisen/agent.(*Registry).Notify",
	"github.com/strongdm/aisen-agent/pkg/aisen/agent.Notify",
}

// ParseStackTrace converts the text produced by runtime/debug.Stack (or a
// panic dump) into frames, outermost call last. Goroutine headers are
// skipped, argument lists and pc offsets are dropped, and leading frames
// belonging to the capture machinery are trimmed.
func ParseStackTrace(trace string) []Frame {
	if trace == "" {
		return nil
	}

	var frames []Frame
	lines := strings.Split(trace, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "goroutine ") {
			continue
		}
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(trimmed, "/") {
			// Location line without a preceding function line.
			continue
		}

		frame := Frame{Function: functionName(trimmed)}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			frame.File, frame.Line = fileAndLine(strings.TrimSpace(lines[i+1]))
			i++
		}
		if frame.Function == "" {
			continue
		}
		frames = append(frames, frame)
	}

	return trimInternalFrames(frames)
}

// FramesFromError returns the frames of the first error in err's chain that
// carries its own stack, or nil when none does.
func FramesFromError(err error) []Frame {
	var se StackError
	if !errors.As(err, &se) {
		return nil
	}
	return ParseStackTrace(string(se.Stack()))
}

// functionName strips the argument list from a function line.
//
//	main.(*T).Method(0x1, 0x2)        -> main.(*T).Method
//	created by main.main in goroutine 1 -> main.main
func functionName(line string) string {
	if rest, ok := strings.CutPrefix(line, "created by "); ok {
		if idx := strings.Index(rest, " in goroutine"); idx >= 0 {
			rest = rest[:idx]
		}
		return strings.TrimSpace(rest)
	}
	if strings.HasSuffix(line, ")") {
		if idx := strings.LastIndex(line, "("); idx > 0 {
			line = line[:idx]
		}
	}
	return strings.TrimSpace(line)
}

// fileAndLine splits "/app/main.go:42 +0x123" into its path and line.
func fileAndLine(loc string) (string, int) {
	if idx := strings.Index(loc, " "); idx >= 0 {
		loc = loc[:idx]
	}
	colon := strings.LastIndex(loc, ":")
	if colon < 0 {
		return loc, 0
	}
	n, err := strconv.Atoi(loc[colon+1:])
	if err != nil {
		return loc, 0
	}
	return loc[:colon], n
}

func trimInternalFrames(frames []Frame) []Frame {
	start := 0
	for start < len(frames) && isInternalFrame(frames[start].Function) {
		start++
	}
	if start == len(frames) {
		// Nothing but capture machinery; keep it rather than report nothing.
		return frames
	}
	return frames[start:]
}

func isInternalFrame(fn string) bool {
	if fn == "panic" {
		return true
	}
	for _, prefix := range internalFramePrefixes {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}
