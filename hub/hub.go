// Package hub fetches tokenizer and corpus files from the HuggingFace hub
// into a local cache directory.
package hub

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/verseml/poetics/internal/downloader"
	"github.com/verseml/poetics/internal/files"
)

// DefaultDirCreationPerm is the permission used when creating cache directories.
const DefaultDirCreationPerm = os.FileMode(0755)

// RepoType selects the hub namespace a repository lives under.
type RepoType string

const (
	RepoTypeModel   RepoType = "models"
	RepoTypeDataset RepoType = "datasets"
)

// Repo refers to a HuggingFace repository (model or dataset) and manages the
// local cache of its files.
type Repo struct {
	// ID is the "owner/name" repository identifier.
	ID   string
	Type RepoType

	// Revision is the branch or commit to fetch from. Defaults to "main".
	Revision string

	cacheDir        string
	authToken       string
	downloadManager *downloader.Manager
}

// New creates a reference to a model repository given its "owner/name" id.
// Change defaults with the `WithXxx` methods; they return the modified Repo,
// so they can be chained.
func New(id string) *Repo {
	return &Repo{
		ID:       id,
		Type:     RepoTypeModel,
		Revision: "main",
		cacheDir: DefaultCacheDir(),
	}
}

// NewDataset creates a reference to a dataset repository.
func NewDataset(id string) *Repo {
	r := New(id)
	r.Type = RepoTypeDataset
	return r
}

// DefaultCacheDir returns the default cache directory, honoring
// POETICS_CACHE; falls back to ~/.cache/poetics/hub.
func DefaultCacheDir() string {
	if dir := os.Getenv("POETICS_CACHE"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return path.Join(home, ".cache", "poetics", "hub")
}

// InCacheDir sets the cache directory and returns the Repo.
func (r *Repo) InCacheDir(dir string) *Repo {
	r.cacheDir = dir
	return r
}

// WithAuth sets the token used for authentication on gated repositories and
// returns the Repo.
func (r *Repo) WithAuth(token string) *Repo {
	r.authToken = token
	return r
}

// WithRevision sets the branch or commit to fetch from and returns the Repo.
func (r *Repo) WithRevision(revision string) *Repo {
	r.Revision = revision
	return r
}

// getDownloadManager returns the current downloader.Manager, or creates a new one for this Repo.
func (r *Repo) getDownloadManager() *downloader.Manager {
	if r.downloadManager == nil {
		r.downloadManager = downloader.New().WithAuthToken(r.authToken)
	}
	return r.downloadManager
}

// fileURL returns the "resolve" URL for one file of the repository.
func (r *Repo) fileURL(fileName string) string {
	prefix := ""
	if r.Type == RepoTypeDataset {
		prefix = "datasets/"
	}
	return fmt.Sprintf("https://huggingface.co/%s%s/resolve/%s/%s", prefix, r.ID, r.Revision, fileName)
}

// LocalPath returns where fileName is (or would be) cached locally.
func (r *Repo) LocalPath(fileName string) string {
	return path.Join(r.cacheDir, string(r.Type), r.ID, r.Revision, fileName)
}

// HasLocalFile reports whether fileName has already been downloaded.
func (r *Repo) HasLocalFile(fileName string) bool {
	return files.Exists(r.LocalPath(fileName))
}

// DownloadFile fetches fileName into the cache if not yet present, and returns
// its local path.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileWithContext(context.Background(), fileName)
}

// DownloadFileWithContext is like DownloadFile but honors ctx cancellation.
func (r *Repo) DownloadFileWithContext(ctx context.Context, fileName string) (string, error) {
	localPath := r.LocalPath(fileName)
	if err := r.lockedDownload(ctx, r.fileURL(fileName), localPath, false, nil); err != nil {
		return "", err
	}
	return localPath, nil
}
