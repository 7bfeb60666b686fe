package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func openFileSession(t *testing.T, r *Registry) Session {
	t.Helper()
	s, err := r.Open(context.Background(), "edge-01", KindFileOp, 0, 0)
	if err != nil {
		t.Fatalf("open fileop session: %v", err)
	}
	return s
}

func TestListDir_directories_first(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/logs")
	src.transport.fs.addFile("/home/pi/readme.txt", []byte("hello fleet\n"))
	src.transport.fs.addFile("/home/pi/app.conf", []byte("port=8080\n"))
	s := openFileSession(t, r)

	entries, err := r.ListDir(context.Background(), s.ID, "")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Name != "logs" || !entries[0].IsDir {
		t.Errorf("first entry = %+v, want logs dir", entries[0])
	}
	if entries[1].Name != "app.conf" || entries[2].Name != "readme.txt" {
		t.Errorf("file order = %q, %q, want app.conf then readme.txt", entries[1].Name, entries[2].Name)
	}
	if entries[2].Size != int64(len("hello fleet\n")) {
		t.Errorf("readme size = %d", entries[2].Size)
	}
}

func TestListDir_relative_path(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/logs")
	src.transport.fs.addFile("/home/pi/logs/app.log", []byte("line1\n"))
	s := openFileSession(t, r)

	entries, err := r.ListDir(context.Background(), s.ID, "logs")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "app.log" {
		t.Errorf("entries = %+v, want app.log", entries)
	}
}

func TestListDir_missing_directory(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())
	s := openFileSession(t, r)

	if _, err := r.ListDir(context.Background(), s.ID, "nope"); err == nil {
		t.Error("expected error listing missing directory")
	}
}

func TestReadFile_relative_and_absolute(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addFile("/home/pi/readme.txt", []byte("hello fleet\n"))
	s := openFileSession(t, r)

	for _, p := range []string{"readme.txt", "/home/pi/readme.txt"} {
		data, err := r.ReadFile(context.Background(), s.ID, p)
		if err != nil {
			t.Fatalf("ReadFile %q: %v", p, err)
		}
		if string(data) != "hello fleet\n" {
			t.Errorf("ReadFile %q = %q", p, data)
		}
	}
}

func TestReadFile_refuses_oversize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadLimitBytes = 8
	r, src, _ := newTestRegistry(t, cfg)
	src.transport.fs.addFile("/home/pi/big.bin", bytes.Repeat([]byte("x"), 20))
	s := openFileSession(t, r)

	_, err := r.ReadFile(context.Background(), s.ID, "big.bin")
	if err == nil || !strings.Contains(err.Error(), "read limit") {
		t.Errorf("err = %v, want read limit error", err)
	}
}

func TestReadFile_directory_rejected(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/logs")
	s := openFileSession(t, r)

	_, err := r.ReadFile(context.Background(), s.ID, "logs")
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Errorf("err = %v, want directory error", err)
	}
}

func TestWriteFile_roundtrip(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())
	s := openFileSession(t, r)

	if err := r.WriteFile(context.Background(), s.ID, "notes.txt", []byte("a\nb\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := r.ReadFile(context.Background(), s.ID, "notes.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("content = %q, want a\\nb\\n", data)
	}
}

func TestUpload_streams_reader(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/dist")
	s := openFileSession(t, r)

	payload := strings.Repeat("artifact-bytes ", 100)
	n, err := r.Upload(context.Background(), s.ID, "dist/agent.bin", strings.NewReader(payload), time.Second)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("uploaded %d bytes, want %d", n, len(payload))
	}
	node, ok := src.transport.fs.get("/home/pi/dist/agent.bin")
	if !ok || string(node.data) != payload {
		t.Error("uploaded content missing or wrong")
	}

	// A missing parent directory is the remote side's error to surface.
	if _, err := r.Upload(context.Background(), s.ID, "missing/agent.bin", strings.NewReader(payload), time.Second); err == nil {
		t.Error("expected error uploading under missing directory")
	}
}

func TestMkdir_then_remove(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	s := openFileSession(t, r)

	if err := r.Mkdir(context.Background(), s.ID, "build"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if n, ok := src.transport.fs.get("/home/pi/build"); !ok || !n.dir {
		t.Fatal("directory not created")
	}

	if err := r.Remove(context.Background(), s.ID, "build"); err != nil {
		t.Fatalf("Remove dir: %v", err)
	}
	if _, ok := src.transport.fs.get("/home/pi/build"); ok {
		t.Error("directory still present after remove")
	}
}

func TestRemove_file(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addFile("/home/pi/old.log", []byte("x"))
	s := openFileSession(t, r)

	if err := r.Remove(context.Background(), s.ID, "old.log"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := src.transport.fs.get("/home/pi/old.log"); ok {
		t.Error("file still present after remove")
	}
	if err := r.Remove(context.Background(), s.ID, "old.log"); err == nil {
		t.Error("expected error removing missing file")
	}
}

func TestRemove_non_empty_directory_fails(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/logs")
	src.transport.fs.addFile("/home/pi/logs/app.log", []byte("x"))
	s := openFileSession(t, r)

	if err := r.Remove(context.Background(), s.ID, "logs"); err == nil {
		t.Error("expected error removing non-empty directory")
	}
}

func TestChangeDir_updates_cwd(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addDir("/home/pi/logs")
	src.transport.fs.addFile("/home/pi/logs/app.log", []byte("line1\n"))
	s := openFileSession(t, r)

	cwd, err := r.ChangeDir(context.Background(), s.ID, "logs")
	if err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}
	if cwd != "/home/pi/logs" {
		t.Errorf("cwd = %q, want /home/pi/logs", cwd)
	}

	// Relative operations now resolve against the new directory.
	data, err := r.ReadFile(context.Background(), s.ID, "app.log")
	if err != nil {
		t.Fatalf("ReadFile after cd: %v", err)
	}
	if string(data) != "line1\n" {
		t.Errorf("content = %q", data)
	}

	snap, ok := r.Get(s.ID)
	if !ok || snap.Cwd != "/home/pi/logs" {
		t.Errorf("snapshot cwd = %q, want /home/pi/logs", snap.Cwd)
	}
	got, err := r.WorkingDir(s.ID)
	if err != nil || got != "/home/pi/logs" {
		t.Errorf("WorkingDir = %q, %v", got, err)
	}
}

func TestChangeDir_parent(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())
	s := openFileSession(t, r)

	cwd, err := r.ChangeDir(context.Background(), s.ID, "..")
	if err != nil {
		t.Fatalf("ChangeDir ..: %v", err)
	}
	if cwd != "/home" {
		t.Errorf("cwd = %q, want /home", cwd)
	}
}

func TestChangeDir_to_file_rejected(t *testing.T) {
	r, src, _ := newTestRegistry(t, DefaultConfig())
	src.transport.fs.addFile("/home/pi/readme.txt", []byte("x"))
	s := openFileSession(t, r)

	_, err := r.ChangeDir(context.Background(), s.ID, "readme.txt")
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("err = %v, want not a directory", err)
	}
}

func TestChangeDir_missing_target(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())
	s := openFileSession(t, r)

	if _, err := r.ChangeDir(context.Background(), s.ID, "ghost"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestFileOps_require_fileop_session(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())
	s, err := r.Open(context.Background(), "edge-01", KindTerminal, 0, 0)
	if err != nil {
		t.Fatalf("open terminal: %v", err)
	}

	if _, err := r.ListDir(context.Background(), s.ID, ""); err == nil {
		t.Error("expected error listing on terminal session")
	}
	if err := r.WriteFile(context.Background(), s.ID, "x", nil); err == nil {
		t.Error("expected error writing file on terminal session")
	}
}

func TestWorkingDir_unknown_session(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultConfig())

	if _, err := r.WorkingDir("no-such-id"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}
