package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

func sampleEvent() aisen.ErrorEvent {
	return aisen.ErrorEvent{
		EventID:    "evt-1",
		ErrorType:  "panic",
		Message:    "boom",
		StackTrace: "goroutine 1 [running]:\nmain.main()\n\t/app/main.go:10 +0x1d\n",
		Frames: []aisen.Frame{
			{Function: "main.main", File: "/app/main.go", Line: 10},
			{Function: "runtime.main", File: "/usr/local/go/src/runtime/proc.go", Line: 250},
		},
	}
}

func TestCallbackChain_Empty(t *testing.T) {
	chain := NewCallbackChain()

	out, keep, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, aisen.Fingerprint(sampleEvent()), out.Fingerprint)
	assert.NotEmpty(t, out.StackTrace, "raw stack kept without a backtrace filter")
}

func TestCallbackChain_Order(t *testing.T) {
	chain := NewCallbackChain()
	var order []string

	chain.SetBacktraceFilter(func(frames []aisen.Frame) []aisen.Frame {
		order = append(order, "backtrace")
		return frames[:1]
	})
	chain.SetExceptionFilter(func(event *aisen.ErrorEvent) bool {
		order = append(order, "filter")
		if len(event.Frames) != 1 {
			t.Errorf("filter saw %d frames, want filtered frames", len(event.Frames))
		}
		return false
	})
	chain.SetExceptionFingerprint(func(event *aisen.ErrorEvent) string {
		order = append(order, "fingerprint")
		return "custom"
	})

	out, keep, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, []string{"backtrace", "filter", "fingerprint"}, order)
	assert.Equal(t, "custom", out.Fingerprint)
	assert.Len(t, out.Frames, 1)
	assert.Empty(t, out.StackTrace)
}

func TestCallbackChain_FilterSuppresses(t *testing.T) {
	chain := NewCallbackChain()
	fingerprinted := false
	chain.SetExceptionFilter(func(event *aisen.ErrorEvent) bool {
		return strings.Contains(event.Message, "boom")
	})
	chain.SetExceptionFingerprint(func(*aisen.ErrorEvent) string {
		fingerprinted = true
		return "x"
	})

	_, keep, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.False(t, keep)
	assert.False(t, fingerprinted, "fingerprint must not run for suppressed events")
}

func TestCallbackChain_FilterMayMutate(t *testing.T) {
	chain := NewCallbackChain()
	chain.SetExceptionFilter(func(event *aisen.ErrorEvent) bool {
		event.Tags = append(event.Tags, "filtered")
		return false
	})

	out, keep, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, []string{"filtered"}, out.Tags)
}

func TestCallbackChain_EmptyFingerprintFallsBack(t *testing.T) {
	chain := NewCallbackChain()
	chain.SetExceptionFingerprint(func(*aisen.ErrorEvent) string { return "" })

	out, _, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, aisen.Fingerprint(sampleEvent()), out.Fingerprint)
}

func TestCallbackChain_KeepsExistingFingerprint(t *testing.T) {
	chain := NewCallbackChain()
	event := sampleEvent()
	event.Fingerprint = "preset"

	out, _, err := chain.Apply(event)
	require.NoError(t, err)
	assert.Equal(t, "preset", out.Fingerprint)
}

func TestCallbackChain_Panics(t *testing.T) {
	tests := []struct {
		slot  string
		setup func(*CallbackChain)
	}{
		{"backtrace_filter", func(c *CallbackChain) {
			c.SetBacktraceFilter(func([]aisen.Frame) []aisen.Frame { panic("bt") })
		}},
		{"exception_filter", func(c *CallbackChain) {
			c.SetExceptionFilter(func(*aisen.ErrorEvent) bool { panic("filter") })
		}},
		{"exception_fingerprint", func(c *CallbackChain) {
			c.SetExceptionFingerprint(func(*aisen.ErrorEvent) string { panic("fp") })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			chain := NewCallbackChain()
			tt.setup(chain)

			_, keep, err := chain.Apply(sampleEvent())
			assert.False(t, keep)

			var panicErr *CallbackPanicError
			require.True(t, errors.As(err, &panicErr), "err = %v", err)
			assert.Equal(t, tt.slot, panicErr.Slot)
		})
	}
}

func TestCallbackChain_ClearSlot(t *testing.T) {
	chain := NewCallbackChain()
	chain.SetExceptionFilter(func(*aisen.ErrorEvent) bool { return true })
	chain.SetExceptionFilter(nil)

	assert.Nil(t, chain.ExceptionFilter())
	_, keep, err := chain.Apply(sampleEvent())
	require.NoError(t, err)
	assert.True(t, keep)
}
