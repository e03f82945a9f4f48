package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

type VerifyOptions struct {
	// Expected maps artifact base names to lowercase sha256 hex. Artifacts
	// without an entry are only hashed.
	Expected map[string]string
	Stdout   io.Writer
	Stderr   io.Writer
}

// FileReport describes one artifact on disk.
type FileReport struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// Report is the outcome of Verify.
type Report struct {
	Merges FileReport      `json:"merges"`
	Vocab  FileReport      `json:"vocab"`
	Stats  tokenizer.Stats `json:"stats"`
}

// ErrVerifyFailed is wrapped by Verify when any check fails.
var ErrVerifyFailed = errors.New("verify failed")

// Verify checks that both artifacts exist, match any expected checksums,
// parse, and form a complete model. Each check is reported as a PASS or
// FAIL line.
func Verify(a Artifacts, opts VerifyOptions) (Report, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	var (
		report   Report
		failures []string
	)

	fail := func(name string, err error) {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", name, err)
		failures = append(failures, name)
	}
	pass := func(format string, args ...any) {
		_, _ = fmt.Fprintf(opts.Stdout, "PASS "+format+"\n", args...)
	}

	for _, art := range []struct {
		name string
		path string
		out  *FileReport
	}{
		{"merges", a.MergesPath, &report.Merges},
		{"vocab", a.VocabPath, &report.Vocab},
	} {
		art.out.Path = art.path

		fr, err := inspectFile(art.path)
		if err != nil {
			fail(art.name, err)
			continue
		}
		*art.out = fr

		if want, ok := opts.Expected[filepath.Base(art.path)]; ok && !strings.EqualFold(want, fr.SHA256) {
			fail(art.name, fmt.Errorf("%w: expected %s got %s", ErrChecksumMismatch, want, fr.SHA256))
			continue
		}
		pass("%s %s (%d bytes, sha256=%s)", art.name, art.path, fr.Size, fr.SHA256)
	}

	m, err := a.Load()
	switch {
	case err != nil:
		fail("load", err)
	case !m.Complete():
		report.Stats = m.Stats()
		fail("model", tokenizer.ErrModelNotLoaded)
	default:
		report.Stats = m.Stats()
		pass("model: %d merges, vocab size = %d", report.Stats.Merges, report.Stats.VocabSize)
		if report.Stats.SkippedLines > 0 {
			_, _ = fmt.Fprintf(opts.Stdout, "  note: %d malformed merge line(s) skipped\n", report.Stats.SkippedLines)
		}
	}

	if len(failures) > 0 {
		return report, fmt.Errorf("%w for %d check(s): %s", ErrVerifyFailed, len(failures), strings.Join(failures, ", "))
	}

	return report, nil
}

func inspectFile(path string) (FileReport, error) {
	if path == "" {
		return FileReport{}, errors.New("path is empty")
	}

	fi, err := os.Stat(path)
	if err != nil {
		return FileReport{Path: path}, err
	}
	if fi.IsDir() {
		return FileReport{Path: path}, fmt.Errorf("%s is a directory", path)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return FileReport{Path: path}, err
	}

	return FileReport{Path: path, Size: fi.Size(), SHA256: sum}, nil
}
