package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitDefaults(t *testing.T) {
	// Reset global state
	Shutdown()

	dir := t.TempDir()
	Init(Config{
		Debug:  true,
		LogDir: dir,
	})
	defer Shutdown()

	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger after Init")
	}

	// Log something and check the file exists with JSONL content
	l.Info("test_message", "key", "value")

	logPath := filepath.Join(dir, "debug.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}

	var record map[string]any
	for i, b := range data {
		if b == '\n' {
			if err := json.Unmarshal(data[:i], &record); err != nil {
				t.Fatalf("failed to parse JSONL: %v (data: %s)", err, string(data[:i]))
			}
			break
		}
	}

	if record["msg"] != "test_message" {
		t.Errorf("expected msg=test_message, got %v", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("expected key=value, got %v", record["key"])
	}
}

func TestForComponentBindsLate(t *testing.T) {
	Shutdown()

	// Component logger created before Init must pick up the real handler.
	compLog := ForComponent(CompController)

	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	compLog.Info("late_bound")

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var record map[string]any
	for i, b := range data {
		if b == '\n' {
			if err := json.Unmarshal(data[:i], &record); err != nil {
				t.Fatalf("failed to parse JSONL: %v", err)
			}
			break
		}
	}

	if record["component"] != CompController {
		t.Errorf("expected component=%s, got %v", CompController, record["component"])
	}
}

func TestDiscardWithoutDebug(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	// Must not panic, and aggregator must accept records
	Logger().Info("discarded")
	Aggregate(CompProc, "output_chunk", 64)
}
