package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/sys"

	"github.com/shardlight/kvbridge/handle"
	"github.com/shardlight/kvbridge/shim"
)

// startGuest is a minimal command guest assembled by hand: _start creates
// one rate limiter and destroys it. Small enough to keep the byte layout
// reviewable.
var startGuest = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section: (i64,i64,i32)->i32, (i32)->(), ()->()
	0x01, 0x0F, 0x03,
	0x60, 0x03, 0x7E, 0x7E, 0x7F, 0x01, 0x7F,
	0x60, 0x01, 0x7F, 0x00,
	0x60, 0x00, 0x00,

	// import section: kvbridge.ratelimiter_create, kvbridge.ratelimiter_destroy
	0x02, 0x3E, 0x02,
	0x08, 'k', 'v', 'b', 'r', 'i', 'd', 'g', 'e',
	0x12, 'r', 'a', 't', 'e', 'l', 'i', 'm', 'i', 't', 'e', 'r', '_', 'c', 'r', 'e', 'a', 't', 'e',
	0x00, 0x00,
	0x08, 'k', 'v', 'b', 'r', 'i', 'd', 'g', 'e',
	0x13, 'r', 'a', 't', 'e', 'l', 'i', 'm', 'i', 't', 'e', 'r', '_', 'd', 'e', 's', 't', 'r', 'o', 'y',
	0x00, 0x01,

	// function section: one func of type ()->()
	0x03, 0x02, 0x01, 0x02,

	// export section: "_start" -> func 2
	0x07, 0x0A, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x02,

	// code section: create(1, 1, 1) then destroy the returned handle
	0x0A, 0x0E, 0x01, 0x0C, 0x00,
	0x42, 0x01, // i64.const 1
	0x42, 0x01, // i64.const 1
	0x41, 0x01, // i32.const 1
	0x10, 0x00, // call ratelimiter_create
	0x10, 0x01, // call ratelimiter_destroy
	0x0B,
}

// eventCounter tracks create/destroy balance through registry events.
type eventCounter struct {
	created   int
	destroyed int
}

func (c *eventCounter) OnHandleEvent(e handle.Event) {
	switch e.Type {
	case handle.EventCreated:
		c.created++
	case handle.EventDestroyed:
		c.destroyed++
	}
}

func TestRun_StartRunsOnce(t *testing.T) {
	wasmFile := filepath.Join(t.TempDir(), "guest.wasm")
	if err := os.WriteFile(wasmFile, startGuest, 0o644); err != nil {
		t.Fatalf("write guest: %v", err)
	}

	s := shim.New(nil)
	defer s.Close()

	counter := &eventCounter{}
	s.Registry().Subscribe(counter)
	defer s.Registry().Unsubscribe(counter)

	if err := run(s, wasmFile, "_start", ""); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if counter.created != 1 {
		t.Errorf("Guest created %d handles, want 1", counter.created)
	}
	if counter.destroyed != 1 {
		t.Errorf("Guest destroyed %d handles, want 1", counter.destroyed)
	}
	if live := s.Live(); live != 0 {
		t.Errorf("Expected no live handles after run, got %d", live)
	}
}

func TestGuestCallError(t *testing.T) {
	if err := guestCallError("_start", sys.NewExitError(0)); err != nil {
		t.Errorf("Exit status 0 must not be an error, got %v", err)
	}

	err := guestCallError("_start", sys.NewExitError(3))
	if err == nil {
		t.Fatal("Expected an error for a non-zero exit")
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Errorf("Expected exit code in message, got %q", err)
	}

	cause := fmt.Errorf("trap")
	err = guestCallError("work", cause)
	if err == nil || !stderrors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "work") {
		t.Errorf("Expected function name in message, got %q", err)
	}
}
