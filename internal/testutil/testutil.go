// Package testutil provides artifact fixtures and skip helpers shared by
// tests across packages.
//
// Typical usage:
//
//	func TestSomething(t *testing.T) {
//	    merges, vocab := testutil.WriteDemoArtifacts(t, t.TempDir())
//	    ...
//	}
//
//	func TestRealModel(t *testing.T) {
//	    merges, vocab := testutil.RequireRealArtifacts(t)
//	    ...
//	}
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// File names match the defaults the CLI looks for.
const (
	MergesFile = "bengali_bpe_demo.merges.txt"
	VocabFile  = "bengali_bpe_demo.vocab.json"
)

// DemoMerges is a small merge table that fully segments DemoText.
var DemoMerges = []string{
	"ম ি",
	"মি </w>",
	"আ মি</w>",
	"শ ি",
	"ন </w>",
	"ম ে",
	"মে শি",
	"মেশি ন</w>",
	"ল া",
	"র ্",
	"লা র্",
	"ন ি",
	"নি ং",
	"নিং </w>",
	"ছ ি",
	"ছি </w>",
	"শি খ",
	"শিখ ছি</w>",
}

// DemoVocab assigns ids to the merged words of DemoText and a few pieces.
var DemoVocab = map[string]int{
	"</w>":      0,
	"আমি</w>":   1,
	"মেশিন</w>": 2,
	"লার্":      3,
	"নিং</w>":   4,
	"শিখছি</w>": 5,
	"মি":        6,
	"শি":        7,
	"ম":         8,
	"শ":         9,
}

// DemoText and its expected encoding under DemoMerges and DemoVocab.
const DemoText = "আমি মেশিন লার্নিং শিখছি"

var (
	DemoTokens = []string{"আমি</w>", "মেশিন</w>", "লার্", "নিং</w>", "শিখছি</w>"}
	DemoIDs    = []int{1, 2, 3, 4, 5}
)

// WriteArtifacts writes a merges file (one rule per line) and a JSON
// vocabulary into dir under the default file names and returns their paths.
func WriteArtifacts(tb testing.TB, dir string, merges []string, vocab map[string]int) (string, string) {
	tb.Helper()

	mergesPath := filepath.Join(dir, MergesFile)
	vocabPath := filepath.Join(dir, VocabFile)

	body := strings.Join(merges, "\n")
	if body != "" {
		body += "\n"
	}
	if err := os.WriteFile(mergesPath, []byte(body), 0o644); err != nil {
		tb.Fatalf("write merges fixture: %v", err)
	}

	b, err := json.Marshal(vocab)
	if err != nil {
		tb.Fatalf("encode vocab fixture: %v", err)
	}
	if err := os.WriteFile(vocabPath, b, 0o644); err != nil {
		tb.Fatalf("write vocab fixture: %v", err)
	}

	return mergesPath, vocabPath
}

// WriteDemoArtifacts writes DemoMerges and DemoVocab into dir.
func WriteDemoArtifacts(tb testing.TB, dir string) (string, string) {
	tb.Helper()
	return WriteArtifacts(tb, dir, DemoMerges, DemoVocab)
}

// RequireRealArtifacts skips the test unless BANGLABPE_TEST_ARTIFACTS_DIR
// points at a directory holding both trained artifacts.
func RequireRealArtifacts(tb testing.TB) (string, string) {
	tb.Helper()

	dir := os.Getenv("BANGLABPE_TEST_ARTIFACTS_DIR")
	if dir == "" {
		tb.Skip("BANGLABPE_TEST_ARTIFACTS_DIR not set; skipping test against trained artifacts")
		return "", ""
	}

	mergesPath := filepath.Join(dir, MergesFile)
	vocabPath := filepath.Join(dir, VocabFile)
	for _, p := range []string{mergesPath, vocabPath} {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("artifact not available at %q: %v", p, err)
			return "", ""
		}
	}

	return mergesPath, vocabPath
}

// AssertAligned fails the test unless tokens and ids have equal length.
func AssertAligned(tb testing.TB, tokens []string, ids []int) {
	tb.Helper()

	if len(tokens) != len(ids) {
		tb.Fatalf("tokens/ids misaligned: %d tokens, %d ids", len(tokens), len(ids))
	}
}
