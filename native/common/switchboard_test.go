package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestSwitchboardModulePause(t *testing.T) {
	s := NewSwitchboard()
	if err := Guard(s, "vault"); err != nil {
		t.Fatalf("unpaused module must pass: %v", err)
	}
	s.Pause("vault")
	if err := Guard(s, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(s, "registry"); err != nil {
		t.Fatalf("other modules stay live: %v", err)
	}
	s.Resume("vault")
	if err := Guard(s, "vault"); err != nil {
		t.Fatalf("resumed module must pass: %v", err)
	}
}

func TestSwitchboardGlobalPause(t *testing.T) {
	s := NewSwitchboard()
	s.PauseAll()
	if err := Guard(s, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("global pause gates everything, got %v", err)
	}
	s.ResumeAll()
	if err := Guard(s, "vault"); err != nil {
		t.Fatalf("resume all must clear the gate: %v", err)
	}
	s.Pause("vault")
	s.PauseAll()
	s.ResumeAll()
	if err := Guard(s, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("per-module pause survives a global resume, got %v", err)
	}
}
