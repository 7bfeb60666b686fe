package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"
)

// DirEntry is one row of a remote directory listing.
type DirEntry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}

// resolvePath turns a possibly relative remote path into an absolute one
// against the session's working directory. Remote paths are POSIX.
func resolvePath(cwd, p string) string {
	if p == "" {
		return cwd
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(cwd, p)
}

// ListDir lists a remote directory, directories first then by name.
func (r *Registry) ListDir(ctx context.Context, sessionID, p string) ([]DirEntry, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return nil, err
	}
	abs := resolvePath(s.workingDir(), p)

	infos, err := runWithTimeout(ctx, r.cfg.ExecTimeout, func() ([]os.FileInfo, error) {
		return s.files.ReadDir(abs)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", abs, err)
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, DirEntry{
			Name:    fi.Name(),
			Size:    fi.Size(),
			Mode:    fi.Mode().String(),
			ModTime: fi.ModTime().UTC(),
			IsDir:   fi.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// ReadFile fetches a remote file, refusing anything over the configured
// read limit.
func (r *Registry) ReadFile(ctx context.Context, sessionID, p string) ([]byte, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return nil, err
	}
	abs := resolvePath(s.workingDir(), p)

	return runWithTimeout(ctx, r.cfg.ExecTimeout, func() ([]byte, error) {
		fi, err := s.files.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", abs, err)
		}
		if fi.IsDir() {
			return nil, fmt.Errorf("%s is a directory", abs)
		}
		if fi.Size() > r.cfg.ReadLimitBytes {
			return nil, fmt.Errorf("%s is %d bytes, over the %d byte read limit", abs, fi.Size(), r.cfg.ReadLimitBytes)
		}

		f, err := s.files.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", abs, err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, r.cfg.ReadLimitBytes))
	})
}

// WriteFile creates or replaces a remote file with the given content.
func (r *Registry) WriteFile(ctx context.Context, sessionID, p string, content []byte) error {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return err
	}
	abs := resolvePath(s.workingDir(), p)

	_, err = runWithTimeout(ctx, r.cfg.ExecTimeout, func() (struct{}, error) {
		f, err := s.files.Create(abs)
		if err != nil {
			return struct{}{}, fmt.Errorf("create %s: %w", abs, err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return struct{}{}, fmt.Errorf("write %s: %w", abs, err)
		}
		if err := f.Close(); err != nil {
			return struct{}{}, fmt.Errorf("flush %s: %w", abs, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Upload streams src into a remote file. Deployments use this for
// artifacts too large to buffer; the timeout scales with the payload, so
// it is the caller's to choose.
func (r *Registry) Upload(ctx context.Context, sessionID, p string, src io.Reader, timeout time.Duration) (int64, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return 0, err
	}
	abs := resolvePath(s.workingDir(), p)

	return runWithTimeout(ctx, timeout, func() (int64, error) {
		f, err := s.files.Create(abs)
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", abs, err)
		}
		n, err := io.Copy(f, src)
		if err != nil {
			f.Close()
			return n, fmt.Errorf("upload %s: %w", abs, err)
		}
		if err := f.Close(); err != nil {
			return n, fmt.Errorf("flush %s: %w", abs, err)
		}
		return n, nil
	})
}

// Remove deletes a remote file or empty directory.
func (r *Registry) Remove(ctx context.Context, sessionID, p string) error {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return err
	}
	abs := resolvePath(s.workingDir(), p)

	_, err = runWithTimeout(ctx, r.cfg.ExecTimeout, func() (struct{}, error) {
		fi, err := s.files.Stat(abs)
		if err != nil {
			return struct{}{}, fmt.Errorf("stat %s: %w", abs, err)
		}
		if fi.IsDir() {
			return struct{}{}, s.files.RemoveDirectory(abs)
		}
		return struct{}{}, s.files.Remove(abs)
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", abs, err)
	}
	return nil
}

// Mkdir creates a remote directory.
func (r *Registry) Mkdir(ctx context.Context, sessionID, p string) error {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return err
	}
	if p == "" {
		return fmt.Errorf("path is required")
	}
	abs := resolvePath(s.workingDir(), p)

	_, err = runWithTimeout(ctx, r.cfg.ExecTimeout, func() (struct{}, error) {
		return struct{}{}, s.files.Mkdir(abs)
	})
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return nil
}

// ChangeDir moves the session's working directory. The target must exist
// and be a directory; on success the updated cwd is returned.
func (r *Registry) ChangeDir(ctx context.Context, sessionID, p string) (string, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return "", err
	}
	abs := resolvePath(s.workingDir(), p)

	fi, err := runWithTimeout(ctx, r.cfg.ExecTimeout, func() (os.FileInfo, error) {
		return s.files.Stat(abs)
	})
	if err != nil {
		return "", fmt.Errorf("cd %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("cd %s: not a directory", abs)
	}
	s.setWorkingDir(abs)
	return abs, nil
}

// WorkingDir returns the session's current remote directory.
func (r *Registry) WorkingDir(sessionID string) (string, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return "", err
	}
	return s.workingDir(), nil
}
