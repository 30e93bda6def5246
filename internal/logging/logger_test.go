package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	CloseAll()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	logsDir = ""
	debugMode = false
}

func TestDisabledLoggerIsSilentNoOp(t *testing.T) {
	resetState()
	defer resetState()

	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}

	require(!IsDebugMode(), "expected debug mode off by default")
	Get(CategoryKB).Info("should not panic or write anything: %d", 1)
}

func TestInitializeCreatesCategoryLogFiles(t *testing.T) {
	resetState()
	defer resetState()

	workspace := t.TempDir()
	if err := Initialize(workspace, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("expected debug mode enabled")
	}

	Get(CategoryReason).Info("forward chaining fired rule %s", "r1")
	Get(CategoryReason).Debug("derivation depth %d", 2)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(workspace, "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "reason") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a reason category log file")
	}
}

func TestConvenienceShortcutsRouteToTheirCategory(t *testing.T) {
	resetState()
	defer resetState()

	workspace := t.TempDir()
	if err := Initialize(workspace, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Bus("dispatching %d events", 3)
	KBDebug("evicted %s", "a1")
	TMSDebug("retract cascade for %s", "a2")
	Query("query %s completed", "q1")
	Tools("invoked tool %s", "assert_kif")
	TransportDebug("client %s connected", "c1")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(workspace, "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("expected 6 category log files, got %d", len(entries))
	}
}
