package doctor_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-bangla-bpe/internal/doctor"
	"github.com/example/go-bangla-bpe/internal/testutil"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

func hasFailureContaining(failures []string, substr string) bool {
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), strings.ToLower(substr)) {
			return true
		}
	}

	return false
}

func demoConfig(t *testing.T) doctor.Config {
	t.Helper()

	merges, vocab := testutil.WriteDemoArtifacts(t, t.TempDir())

	return doctor.Config{MergesPath: merges, VocabPath: vocab}
}

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	var out strings.Builder
	result := doctor.Run(demoConfig(t), &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	for _, want := range []string{"merges file", "vocab file", "18 merges, vocab size = 10", "5 tokens, 0 unknown"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output should contain %q:\n%s", want, out.String())
		}
	}

	if result.Stats().Merges != len(testutil.DemoMerges) {
		t.Errorf("Stats().Merges = %d", result.Stats().Merges)
	}
}

func TestRun_ReportsUnknownTokensWithoutFailing(t *testing.T) {
	cfg := demoConfig(t)
	cfg.SampleText = "অজানা"

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Fatalf("unknown tokens should not fail: %v", result.Failures())
	}

	if strings.Contains(out.String(), " 0 unknown") {
		t.Errorf("expected unknown tokens to be reported:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// missing artifacts
// ---------------------------------------------------------------------------

func TestRun_MissingArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*doctor.Config)
		failure string
	}{
		{"missing merges", func(c *doctor.Config) { c.MergesPath = "/nonexistent/merges.txt" }, "merges file"},
		{"missing vocab", func(c *doctor.Config) { c.VocabPath = "/nonexistent/vocab.json" }, "vocab file"},
		{"unset merges", func(c *doctor.Config) { c.MergesPath = "" }, "not configured"},
		{"directory vocab", func(c *doctor.Config) { c.VocabPath = t.TempDir() }, "directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := demoConfig(t)
			tt.mutate(&cfg)

			var out strings.Builder
			result := doctor.Run(cfg, &out)

			if !result.Failed() {
				t.Fatal("expected failure")
			}

			if !hasFailureContaining(result.Failures(), tt.failure) {
				t.Errorf("expected failure mentioning %q, got: %v", tt.failure, result.Failures())
			}
		})
	}
}

func TestRun_IncompleteModelFails(t *testing.T) {
	cfg := demoConfig(t)
	cfg.VocabPath = filepath.Join(t.TempDir(), "absent.json")

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "model not loaded") {
		t.Errorf("expected model-not-loaded failure, got: %v", result.Failures())
	}

	if strings.Contains(out.String(), "sample encoding") {
		t.Error("sample encoding should be skipped for an incomplete model")
	}
}

func TestRun_LoadErrorFails(t *testing.T) {
	cfg := demoConfig(t)
	if err := os.WriteFile(cfg.VocabPath, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "model load") {
		t.Errorf("expected model load failure, got: %v", result.Failures())
	}
}

func TestRun_InjectedLoader(t *testing.T) {
	cfg := demoConfig(t)
	cfg.Load = func(_, _ string) (*tokenizer.Model, error) { return nil, errors.New("boom") }

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "boom") {
		t.Errorf("expected injected loader error, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// server probe
// ---------------------------------------------------------------------------

func TestRun_ServerProbe(t *testing.T) {
	cfg := demoConfig(t)
	cfg.ServerAddr = ":8080"
	cfg.Probe = func() error { return errors.New("connection refused") }

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "server :8080") {
		t.Errorf("expected server failure, got: %v", result.Failures())
	}

	cfg.Probe = func() error { return nil }
	out.Reset()
	result = doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("healthy probe should pass: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// output markers and Result helpers
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := demoConfig(t)
	cfg.MergesPath = "/nonexistent/merges.txt"

	var out strings.Builder
	doctor.Run(cfg, &out)

	if !strings.Contains(out.String(), doctor.PassMark) {
		t.Errorf("output should contain %q:\n%s", doctor.PassMark, out.String())
	}

	if !strings.Contains(out.String(), doctor.FailMark) {
		t.Errorf("output should contain %q:\n%s", doctor.FailMark, out.String())
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	if r.Failed() {
		t.Fatal("zero Result should not be failed")
	}

	r.AddFailure("external")

	if !r.Failed() || r.Failures()[0] != "external" {
		t.Errorf("Failures() = %v", r.Failures())
	}

	// Failures returns a copy.
	r.Failures()[0] = "mutated"
	if r.Failures()[0] != "external" {
		t.Error("Failures() exposed internal slice")
	}
}
