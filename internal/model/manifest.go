package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

const (
	DefaultMergesFile = "bengali_bpe_demo.merges.txt"
	DefaultVocabFile  = "bengali_bpe_demo.vocab.json"

	// LockManifestName is written next to downloaded artifacts.
	LockManifestName = "download-manifest.lock.json"

	DefaultRevision = "main"
)

// Artifacts locates the merge-rule and vocabulary files of one model.
type Artifacts struct {
	MergesPath string `json:"merges_path"`
	VocabPath  string `json:"vocab_path"`
}

// DefaultArtifacts returns the artifact names expected in the working
// directory.
func DefaultArtifacts() Artifacts {
	return ArtifactsIn(".")
}

// ArtifactsIn returns the default artifact names inside dir.
func ArtifactsIn(dir string) Artifacts {
	return Artifacts{
		MergesPath: filepath.Join(dir, DefaultMergesFile),
		VocabPath:  filepath.Join(dir, DefaultVocabFile),
	}
}

// Load reads both artifacts. Missing files produce an incomplete model
// rather than an error.
func (a Artifacts) Load() (*tokenizer.Model, error) {
	return tokenizer.Load(a.MergesPath, a.VocabPath)
}

// Dirs returns the distinct parent directories of the configured paths.
func (a Artifacts) Dirs() []string {
	var dirs []string
	seen := map[string]bool{}
	for _, p := range []string{a.MergesPath, a.VocabPath} {
		if p == "" {
			continue
		}
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Repository types understood by the Hugging Face resolve endpoint.
const (
	RepoTypeModel   = "model"
	RepoTypeDataset = "dataset"
	RepoTypeSpace   = "space"
)

// Manifest lists the files fetched from one Hugging Face repository.
type Manifest struct {
	Repo     string         `json:"repo"`
	RepoType string         `json:"repo_type"`
	Files    []ArtifactFile `json:"files"`
}

// ArtifactFile is one remote file. An empty SHA256 means the checksum is
// taken from the lock manifest or recorded on first download.
type ArtifactFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// NewManifest describes files at a single revision of repo. With no files
// the two default artifact names are used.
func NewManifest(repo, repoType, revision string, files ...string) (Manifest, error) {
	repo = strings.Trim(strings.TrimSpace(repo), "/")
	if repo == "" {
		return Manifest{}, errors.New("repo is required")
	}
	if strings.Count(repo, "/") != 1 {
		return Manifest{}, fmt.Errorf("repo %q must look like owner/name", repo)
	}

	if repoType == "" {
		repoType = RepoTypeModel
	}
	if _, err := repoPrefix(repoType); err != nil {
		return Manifest{}, err
	}

	if revision == "" {
		revision = DefaultRevision
	}

	if len(files) == 0 {
		files = []string{DefaultMergesFile, DefaultVocabFile}
	}

	m := Manifest{Repo: repo, RepoType: repoType}
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			return Manifest{}, errors.New("empty file name in manifest")
		}
		m.Files = append(m.Files, ArtifactFile{Filename: f, Revision: revision})
	}

	return m, nil
}

func repoPrefix(repoType string) (string, error) {
	switch repoType {
	case RepoTypeModel, "":
		return "", nil
	case RepoTypeDataset:
		return "datasets/", nil
	case RepoTypeSpace:
		return "spaces/", nil
	default:
		return "", fmt.Errorf("unknown repo type %q (expected %s|%s|%s)", repoType, RepoTypeModel, RepoTypeDataset, RepoTypeSpace)
	}
}
