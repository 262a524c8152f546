// backend.go defines the Backend transport contract and delivery classification.

package aisen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Backend performs the handshake and delivery of error events.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Ping validates connectivity and credentials. A nil error means the
	// backend is ready to accept events.
	Ping(ctx context.Context) error

	// Deliver sends one event. It never panics on transport failure; the
	// outcome, including the failure class, is carried by the Response.
	Deliver(ctx context.Context, event ErrorEvent) Response
}

// Response is the outcome of a single delivery attempt.
type Response struct {
	// Delivered is true when the collector accepted the event.
	Delivered bool

	// StatusCode is the transport status (HTTP status for network
	// backends). Zero when no response was received.
	StatusCode int

	// Retryable is true when a later attempt may succeed.
	Retryable bool

	// RetryAfter is an optional server hint for the next attempt.
	RetryAfter time.Duration

	// Err describes the failure, nil on success.
	Err error
}

// Outcome classifies a delivery attempt.
type Outcome int

const (
	// OutcomeDelivered means the event was accepted.
	OutcomeDelivered Outcome = iota

	// OutcomeTransient means the attempt failed but may succeed on retry:
	// transport errors, timeouts, 5xx, 408, and 429.
	OutcomeTransient

	// OutcomeFatal means retrying cannot succeed: 4xx other than 408/429,
	// and any other unexpected status.
	OutcomeFatal
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Classify maps a transport result to an Outcome. A non-nil err with no
// status is a transport failure and therefore transient.
func Classify(statusCode int, err error) Outcome {
	if statusCode == 0 {
		if err != nil {
			return OutcomeTransient
		}
		return OutcomeDelivered
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeDelivered
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return OutcomeTransient
	case statusCode >= 500:
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}

// ResponseFor builds a Response from a status code and transport error,
// deriving Delivered and Retryable from Classify.
func ResponseFor(statusCode int, err error) Response {
	outcome := Classify(statusCode, err)
	resp := Response{
		Delivered:  outcome == OutcomeDelivered,
		StatusCode: statusCode,
		Retryable:  outcome == OutcomeTransient,
		Err:        err,
	}
	if !resp.Delivered && resp.Err == nil {
		resp.Err = fmt.Errorf("unexpected status %d", statusCode)
	}
	return resp
}

// Fatal builds a non-retryable failure Response, used for errors that
// happen before anything is sent (for example, encoding failures).
func Fatal(err error) Response {
	if err == nil {
		err = errors.New("fatal delivery error")
	}
	return Response{Err: err}
}

// Outcome reports how the response classifies.
func (r Response) Outcome() Outcome {
	switch {
	case r.Delivered:
		return OutcomeDelivered
	case r.Retryable:
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}
