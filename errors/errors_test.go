package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := New(PhaseCreate, KindInvalidConfig).
		Resource("ratelimiter").
		Detail("rate must be positive, got %d", 0).
		Build()

	msg := err.Error()
	if !strings.Contains(msg, "[create]") {
		t.Errorf("Expected phase in message, got %q", msg)
	}
	if !strings.Contains(msg, "invalid_config") {
		t.Errorf("Expected kind in message, got %q", msg)
	}
	if !strings.Contains(msg, "ratelimiter") {
		t.Errorf("Expected resource in message, got %q", msg)
	}
	if !strings.Contains(msg, "got 0") {
		t.Errorf("Expected detail in message, got %q", msg)
	}
}

func TestError_CauseChain(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Open("open database", cause)

	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected cause in message, got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should match the cause")
	}

	var target *Error
	if !stderrors.As(err, &target) {
		t.Fatal("errors.As should extract *Error")
	}
	if target.Phase != PhaseOpen {
		t.Errorf("Expected phase open, got %s", target.Phase)
	}
}

func TestError_Is(t *testing.T) {
	a := InvalidConfig("ratelimiter", "fairness", -1)
	b := New(PhaseCreate, KindInvalidConfig).Build()
	c := New(PhaseDestroy, KindInvalidConfig).Build()

	if !stderrors.Is(a, b) {
		t.Error("Same phase and kind should match")
	}
	if stderrors.Is(a, c) {
		t.Error("Different phase should not match")
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want uint32
	}{
		{"nil", nil, ErrnoOK},
		{"invalid config", InvalidConfig("ratelimiter", "rate", 0), ErrnoInvalidConfig},
		{"not found", NotFound(PhaseCall, "iterator", 7), ErrnoNotFound},
		{"type mismatch", TypeMismatch(PhaseCall, "snapshot", "iterator"), ErrnoTypeMismatch},
		{"closed", Closed(PhaseCreate, "registry"), ErrnoClosed},
		{"plain error", stderrors.New("boom"), ErrnoUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Errorf("Errno() = %d, want %d", got, tt.want)
			}
		})
	}
}
