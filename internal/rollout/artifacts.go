package rollout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactSource resolves artifact refs to readable content and optional
// per-artifact step commands.
type ArtifactSource interface {
	// Open returns the artifact content and its size in bytes.
	Open(ref string) (io.ReadCloser, int64, error)

	// Command returns the step command shipped alongside the artifact,
	// if any. A missing override means the configured template applies.
	Command(ref string, step Step) (string, bool)
}

// DirSource serves artifacts from a local directory. Refs are bare file
// names; anything that resolves outside the directory is rejected.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Open implements ArtifactSource.
func (s *DirSource) Open(ref string) (io.ReadCloser, int64, error) {
	if err := validRef(ref); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, 0, fmt.Errorf("artifact %q: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("artifact %q: %w", ref, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("artifact %q is a directory", ref)
	}
	return f, info.Size(), nil
}

// Command implements ArtifactSource. Override files sit next to the
// artifact as <ref>.install and <ref>.start, one command per file.
func (s *DirSource) Command(ref string, step Step) (string, bool) {
	if validRef(ref) != nil {
		return "", false
	}
	b, err := os.ReadFile(filepath.Join(s.dir, ref+"."+string(step)))
	if err != nil {
		return "", false
	}
	cmd := strings.TrimSpace(string(b))
	if cmd == "" {
		return "", false
	}
	return cmd, true
}

func validRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("artifact ref is empty")
	}
	if ref == "." || ref == ".." || filepath.Base(ref) != ref {
		return fmt.Errorf("artifact ref %q: must be a bare file name", ref)
	}
	return nil
}
