package aisen

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	netErr := errors.New("connection reset")

	tests := []struct {
		name   string
		status int
		err    error
		want   Outcome
	}{
		{"ok", 200, nil, OutcomeDelivered},
		{"created", 201, nil, OutcomeDelivered},
		{"no status no error", 0, nil, OutcomeDelivered},
		{"transport error", 0, netErr, OutcomeTransient},
		{"service unavailable", 503, nil, OutcomeTransient},
		{"internal error", 500, nil, OutcomeTransient},
		{"rate limited", 429, nil, OutcomeTransient},
		{"request timeout", 408, nil, OutcomeTransient},
		{"unprocessable", 422, nil, OutcomeFatal},
		{"unauthorized", 401, nil, OutcomeFatal},
		{"forbidden", 403, nil, OutcomeFatal},
		{"payload too large", 413, nil, OutcomeFatal},
		{"redirect", 302, nil, OutcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, tt.err); got != tt.want {
				t.Errorf("Classify(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

func TestResponseFor(t *testing.T) {
	resp := ResponseFor(503, nil)
	if resp.Delivered || !resp.Retryable || resp.Err == nil {
		t.Errorf("ResponseFor(503) = %+v, want retryable failure with error", resp)
	}

	resp = ResponseFor(422, nil)
	if resp.Delivered || resp.Retryable {
		t.Errorf("ResponseFor(422) = %+v, want fatal failure", resp)
	}
	if resp.Outcome() != OutcomeFatal {
		t.Errorf("Outcome = %v, want fatal", resp.Outcome())
	}

	resp = ResponseFor(202, nil)
	if !resp.Delivered || resp.Err != nil {
		t.Errorf("ResponseFor(202) = %+v, want delivered", resp)
	}
}

func TestFatal(t *testing.T) {
	resp := Fatal(nil)

	if resp.Delivered || resp.Retryable || resp.Err == nil {
		t.Errorf("Fatal(nil) = %+v", resp)
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeTransient.String() != "transient" {
		t.Errorf("String = %q", OutcomeTransient.String())
	}
	if Outcome(9).String() != "outcome(9)" {
		t.Errorf("String = %q", Outcome(9).String())
	}
}
