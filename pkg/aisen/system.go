// system.go captures process state at error time.

package aisen

import (
	"os"
	"runtime"
	"time"
)

// CaptureSystemState captures process metrics at the current moment.
// The startTime parameter is used to calculate process uptime; a start time
// in the future clamps uptime to zero.
func CaptureSystemState(startTime time.Time) *SystemState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // empty hostname is acceptable

	return &SystemState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       max(time.Since(startTime).Milliseconds(), 0),
		HostName:       hostname,
		PID:            os.Getpid(),
	}
}
