package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const DefaultHFEndpoint = "https://huggingface.co"

type DownloadOptions struct {
	Repo     string
	RepoType string
	Revision string
	// Files overrides the default artifact names.
	Files    []string
	OutDir   string
	HFToken  string
	Endpoint string
	Stdout   io.Writer
}

// AccessDeniedError reports a 401/403 from the hub.
type AccessDeniedError struct {
	Repo string
	Msg  string
}

func (e *AccessDeniedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

// ErrChecksumMismatch is wrapped when a downloaded file disagrees with its
// pinned or locked checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type lockManifest struct {
	Repo      string                `json:"repo"`
	RepoType  string                `json:"repo_type,omitempty"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

type hfClient struct {
	http     *http.Client
	endpoint string
	token    string
}

func newHFClient(endpoint string) *hfClient {
	if endpoint == "" {
		endpoint = DefaultHFEndpoint
	}
	return &hfClient{
		http:     &http.Client{Timeout: 0},
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Download fetches the manifest files into OutDir. Files already on disk
// with a matching checksum are skipped. Checksums are trusted on first
// download and recorded in the lock manifest; later downloads of the same
// revision must match it.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.OutDir == "" {
		return errors.New("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	manifest, err := NewManifest(opts.Repo, opts.RepoType, opts.Revision, opts.Files...)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockManifestName)
	lock := readLockManifest(lockPath)
	if lock.Repo != "" && (lock.Repo != manifest.Repo || lock.RepoType != manifest.RepoType) {
		// A different repository invalidates every recorded checksum.
		lock.Files = map[string]lockRecord{}
	}
	lock.Repo = manifest.Repo
	lock.RepoType = manifest.RepoType
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	client := newHFClient(opts.Endpoint)
	client.token = opts.HFToken

	for _, f := range manifest.Files {
		expected := strings.ToLower(f.SHA256)
		if expected == "" {
			if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
				expected = strings.ToLower(lr.SHA256)
			} else {
				expected, err = client.resolveChecksum(ctx, manifest, f)
				if err != nil {
					var denied *AccessDeniedError
					if errors.As(err, &denied) {
						return err
					}
					// Small git-tracked files carry no sha256 metadata.
					expected = ""
				}
			}
		}

		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create local subdir: %w", err)
		}

		if expected != "" {
			if ok, err := existingMatches(localPath, expected); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: expected}
				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, f.Revision, localPath)
		actual, err := client.download(ctx, manifest, f, localPath, expected, opts.Stdout)
		if err != nil {
			return err
		}
		if expected == "" {
			fmt.Fprintf(opts.Stdout, "recorded %s (sha256=%s)\n", f.Filename, actual)
		} else {
			fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		}
		lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: actual}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// download streams one file to outPath through a temp file, hashing as it
// goes. The file is only moved into place when expected is empty or matches.
func (c *hfClient) download(ctx context.Context, m Manifest, file ArtifactFile, outPath, expected string, stdout io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(m, file), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", accessDenied(m.Repo)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", file.Filename, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	mw := io.MultiWriter(fh, h)

	var written int64
	buf := make([]byte, 64*1024)
	total := resp.ContentLength
	lastPrint := time.Now()
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := mw.Write(buf[:n])
			if writeErr != nil {
				_ = fh.Close()
				_ = os.Remove(tmp)
				return "", fmt.Errorf("write temp file: %w", writeErr)
			}
			written += int64(wn)
			if time.Since(lastPrint) > 700*time.Millisecond {
				if total > 0 {
					pct := float64(written) * 100 / float64(total)
					fmt.Fprintf(stdout, "  progress: %.1f%% (%d/%d bytes)\n", pct, written, total)
				} else {
					fmt.Fprintf(stdout, "  progress: %d bytes\n", written)
				}
				lastPrint = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = fh.Close()
			_ = os.Remove(tmp)
			return "", fmt.Errorf("download read failed: %w", readErr)
		}
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if expected != "" && actual != expected {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w for %s: expected %s got %s", ErrChecksumMismatch, file.Filename, expected, actual)
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return actual, nil
}

// resolveChecksum asks the hub for the file's sha256 via a HEAD request.
// Only LFS-backed files advertise one.
func (c *hfClient) resolveChecksum(ctx context.Context, m Manifest, f ArtifactFile) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.resolveURL(m, f), nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed for %s: %w", f.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", accessDenied(m.Repo)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", f.Filename, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", fmt.Errorf("no sha256 metadata for %s", f.Filename)
}

func (c *hfClient) resolveURL(m Manifest, file ArtifactFile) string {
	prefix, _ := repoPrefix(m.RepoType)
	return fmt.Sprintf("%s/%s%s/resolve/%s/%s", c.endpoint, prefix, m.Repo, file.Revision, file.Filename)
}

func (c *hfClient) setAuth(req *http.Request) {
	if c.token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func accessDenied(repo string) error {
	return &AccessDeniedError{
		Repo: repo,
		Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
	}
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	b, err := os.ReadFile(path)
	if err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}
	var out lockManifest
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}

// LockedChecksums returns the sha256 recorded per file name in the lock
// manifest at path.
func LockedChecksums(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock manifest: %w", err)
	}
	var lock lockManifest
	if err := json.Unmarshal(b, &lock); err != nil {
		return nil, fmt.Errorf("decode lock manifest: %w", err)
	}
	out := make(map[string]string, len(lock.Files))
	for name, rec := range lock.Files {
		out[name] = strings.ToLower(rec.SHA256)
	}
	return out, nil
}
