package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/sbdl/internal/model"
)

// dirPerm is the permission used for soundboard directories.
const dirPerm = 0o750

// FilesystemError reports a failed filesystem operation on Path.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

// Error implements error.
func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// ArtifactPath returns where identifier is stored inside dir.
func ArtifactPath(dir, identifier string) string {
	return filepath.Join(dir, model.ArtifactName(identifier))
}

// Reconcile compares manifest against the artifacts already in dir and
// returns the identifiers still to download, in manifest order, together
// with the number skipped because their file exists. A missing dir is
// created and nothing is skipped. manifest is never modified.
func Reconcile(dir string, manifest []string) ([]string, int, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, 0, &FilesystemError{Op: "mkdir", Path: dir, Err: err}
		}
		return append([]string(nil), manifest...), 0, nil
	case err != nil:
		return nil, 0, &FilesystemError{Op: "stat", Path: dir, Err: err}
	case !info.IsDir():
		return nil, 0, &FilesystemError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
	}

	job := make([]string, 0, len(manifest))
	skipped := 0
	for _, id := range manifest {
		if artifactExists(ArtifactPath(dir, id)) {
			skipped++
			continue
		}
		job = append(job, id)
	}
	return job, skipped, nil
}

// artifactExists reports whether a regular file exists at path. Anything
// else, including a directory with the artifact's name, counts as missing.
func artifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
