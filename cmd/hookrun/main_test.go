package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

// writeTestConfig writes a minimal valid config with an executable script.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	script := filepath.Join(dir, "action.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "hookrun.yaml")
	configYAML := `
listen: "127.0.0.1:8000"
state:
  path: "` + filepath.Join(dir, "hookrun.db") + `"
endpoints:
  - path: /hooks/deploy
    script: ` + script + `
    secret: test-secret
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunConfigCheckValid(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("stdout missing valid verdict: %s", stdout)
	}
}

func TestRunConfigCheckMissingScript(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "hookrun.yaml")
	configYAML := `
endpoints:
  - path: /hooks/deploy
    script: /no/such/script.sh
    secret: test-secret
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runConfigCheck() code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Configuration invalid") {
		t.Fatalf("stdout missing invalid verdict: %s", stdout)
	}
}

func TestRunConfigCheckJSON(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"valid": true`) {
		t.Fatalf("stdout missing JSON verdict: %s", stdout)
	}
}

func TestRunConfigLockWritesChecksums(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Wrote") {
		t.Fatalf("stdout missing checksums path: %s", stdout)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(configPath), ".checksums")); err != nil {
		t.Fatalf("expected .checksums to be written: %v", err)
	}
}

func TestRunDeliveryListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDeliveryList([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runDeliveryList() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "No deliveries recorded.") {
		t.Fatalf("stdout missing empty verdict: %s", stdout)
	}
}

func TestRunConfigNounActionHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--help"})
	})
	if code != 0 {
		t.Fatalf("runConfigNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: hookrun config check") {
		t.Fatalf("stdout missing action help usage: %s", stdout)
	}
}

func TestRunSystemNounActionHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSystemNoun([]string{"start", "--help"})
	})
	if code != 0 {
		t.Fatalf("runSystemNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: hookrun system start") {
		t.Fatalf("stdout missing start action help usage: %s", stdout)
	}
}

func TestRunDeliveryNounActionHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDeliveryNoun([]string{"list", "--help"})
	})
	if code != 0 {
		t.Fatalf("runDeliveryNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: hookrun delivery list") {
		t.Fatalf("stdout missing list action help usage: %s", stdout)
	}
}

func TestRunUnknownNounAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("runConfigNoun() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown config action") {
		t.Fatalf("stderr missing unknown action message: %s", stderr)
	}
}

func TestPrintUsage(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})
	if !strings.Contains(stdout, "hookrun <noun> <action> [flags]") {
		t.Fatalf("usage missing action terminology: %s", stdout)
	}
	if !strings.Contains(stdout, "delivery watch") {
		t.Fatalf("usage missing delivery watch: %s", stdout)
	}
}
