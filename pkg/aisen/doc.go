// Package aisen provides the shared types of the aisen error-reporting agent:
// the canonical ErrorEvent, the Backend transport contract, delivery
// classification, default fingerprinting, and fail-closed scrubbing.
//
// The agent itself lives in subpackages:
//
//   - agent: process-wide lifecycle (Start/Stop), configuration, and the
//     callback chain applied to every event before it is queued
//   - worker: bounded background queue with retry, backoff, and drop policy
//   - backends: transports (server, null, recording, debug, multi, cxdb)
//
// # Quick Start
//
//	ok := agent.Start(agent.FromOptions(map[string]any{
//	    "api_key": os.Getenv("AISEN_API_KEY"),
//	}))
//	defer agent.Stop()
//
//	agent.Notify(ctx, err)
//
// For panics outside instrumented code:
//
//	defer aisen.Recover(ctx, agent.Instance())
//
// # Design Principles
//
//   - Reporting never aborts or blocks the host: delivery happens on a
//     background worker and every failure is logged, not returned
//   - Fail-closed scrubbing: on any error, fields are fully redacted
//   - Best effort, not durable: events that exhaust their retry budget are
//     dropped with a logged reason
package aisen
