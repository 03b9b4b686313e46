package ftp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeServer struct {
	files    map[string][]byte
	dirs     map[string]bool
	cwd      string
	renamed  [][2]string
	failures []error
	dials    int
}

type fakeConn struct {
	s *fakeServer
}

func (c *fakeConn) Login(user, password string) error {
	if user != "user" || password != "secret" {
		return &textproto.Error{Code: 530, Msg: "Login incorrect."}
	}
	return nil
}

func (c *fakeConn) ChangeDir(dir string) error {
	if !c.s.dirs[dir] {
		return &textproto.Error{Code: 550, Msg: "Failed to change directory."}
	}
	c.s.cwd = dir
	return nil
}

func (c *fakeConn) Stor(name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.s.files[c.s.cwd+"/"+name] = b
	return nil
}

func (c *fakeConn) Retr(name string) (io.ReadCloser, error) {
	b, ok := c.s.files[c.s.cwd+"/"+name]
	if !ok {
		return nil, &textproto.Error{Code: 550, Msg: "Failed to open file."}
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (c *fakeConn) NameList(string) ([]string, error) {
	var names []string
	for p := range c.s.files {
		if filepath.Dir(p) == c.s.cwd {
			names = append(names, filepath.Base(p))
		}
	}
	return names, nil
}

func (c *fakeConn) Rename(from, to string) error {
	c.s.renamed = append(c.s.renamed, [2]string{from, to})
	return nil
}

func (c *fakeConn) MakeDir(p string) error {
	if c.s.dirs[p] {
		return &textproto.Error{Code: 550, Msg: "Create directory operation failed: File exists"}
	}
	if p == "forbidden" {
		return &textproto.Error{Code: 553, Msg: "Permission denied"}
	}
	c.s.dirs[p] = true
	return nil
}

func (c *fakeConn) Quit() error { return nil }

func newTestClient(s *fakeServer) (*Client, *[]time.Duration) {
	var delays []time.Duration

	c := New("ftp.example.org", "user", "secret")
	c.Retry.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	c.dial = func(context.Context, string, time.Duration) (conn, error) {
		s.dials++
		if len(s.failures) > 0 {
			err := s.failures[0]
			s.failures = s.failures[1:]
			return nil, err
		}
		return &fakeConn{s: s}, nil
	}

	return c, &delays
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files: map[string][]byte{},
		dirs:  map[string]bool{"gva/parkhaus": true},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUpload(t *testing.T) {
	s := newFakeServer()
	c, _ := newTestClient(s)
	local := writeFile(t, t.TempDir(), "out.csv", "a,b\n1,2\n")

	if err := c.Upload(context.Background(), local, "gva/parkhaus"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := string(s.files["gva/parkhaus/out.csv"]); got != "a,b\n1,2\n" {
		t.Errorf("uploaded content should be the local file, but %q", got)
	}
}

func TestUpload_TransientFailures(t *testing.T) {
	s := newFakeServer()
	s.failures = []error{syscall.ECONNRESET, syscall.ECONNRESET}
	c, delays := newTestClient(s)
	local := writeFile(t, t.TempDir(), "out.csv", "x")

	if err := c.Upload(context.Background(), local, "gva/parkhaus"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.dials != 3 {
		t.Errorf("attempts should be 3, but %d", s.dials)
	}

	var total time.Duration
	for _, d := range *delays {
		total += d
	}
	if total != 20*time.Second {
		t.Errorf("total retry sleep should be 20s, but %s", total)
	}
}

func TestUpload_Exhausted(t *testing.T) {
	s := newFakeServer()
	for i := 0; i < 10; i++ {
		s.failures = append(s.failures, syscall.ECONNREFUSED)
	}
	c, _ := newTestClient(s)
	local := writeFile(t, t.TempDir(), "out.csv", "x")

	err := c.Upload(context.Background(), local, "gva/parkhaus")
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("error should be ECONNREFUSED, but %v", err)
	}
	if s.dials != 6 {
		t.Errorf("attempts should be 6, but %d", s.dials)
	}
}

func TestDownload_Pattern(t *testing.T) {
	s := newFakeServer()
	s.files["gva/parkhaus/a_2024.csv"] = []byte("a")
	s.files["gva/parkhaus/b_2024.csv"] = []byte("b")
	s.files["gva/parkhaus/readme.txt"] = []byte("r")
	c, _ := newTestClient(s)
	local := t.TempDir()

	files, err := c.Download(context.Background(), DownloadRequest{
		Pattern:   "*_2024.csv",
		RemoteDir: "gva/parkhaus",
		LocalDir:  local,
		ListOnly:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("2 files should match, but %d", len(files))
	}
	if _, err := os.Stat(files[0].LocalPath); !os.IsNotExist(err) {
		t.Errorf("list only should not transfer %s", files[0].LocalPath)
	}

	files, err = c.Download(context.Background(), DownloadRequest{
		Files:     []string{"readme.txt"},
		RemoteDir: "gva/parkhaus",
		LocalDir:  local,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []RemoteFile{{
		RemotePath: "gva/parkhaus/readme.txt",
		RemoteName: "readme.txt",
		LocalPath:  filepath.Join(local, "readme.txt"),
	}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(filepath.Join(local, "readme.txt"))
	if err != nil || string(b) != "r" {
		t.Errorf(`downloaded file should contain "r", but %q (%v)`, b, err)
	}

	_, err = c.Download(context.Background(), DownloadRequest{
		Pattern:   "*_2025.csv",
		RemoteDir: "gva/parkhaus",
		LocalDir:  local,
	})
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("error should be ErrNoMatch, but %v", err)
	}
}

func TestEnsure(t *testing.T) {
	s := newFakeServer()
	c, _ := newTestClient(s)
	ctx := context.Background()

	if err := c.Ensure(ctx, "new/dir"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.dirs["new/dir"] {
		t.Error("new/dir should be created")
	}
	if err := c.Ensure(ctx, "new/dir"); err != nil {
		t.Errorf("existing folder should not fail, but %v", err)
	}
}

func TestEnsure_OtherErrorsAreRaised(t *testing.T) {
	s := newFakeServer()
	c, _ := newTestClient(s)

	if err := c.Ensure(context.Background(), "forbidden"); err == nil {
		t.Error("permission error should be raised")
	}
}

func TestRename(t *testing.T) {
	s := newFakeServer()
	c, _ := newTestClient(s)

	if err := c.Rename(context.Background(), "gva/a.csv", "b.csv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.renamed) != 1 || s.renamed[0] != [2]string{"gva/a.csv", "b.csv"} {
		t.Errorf("rename should be sent once, but %v", s.renamed)
	}
}

func TestMatch(t *testing.T) {
	got, err := Match([]string{"x/a.csv", "b.CSV", "c.csv"}, "*.csv")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.csv", "c.csv"}, got); diff != "" {
		t.Errorf("match mismatch (-want +got):\n%s", diff)
	}

	if _, err := Match([]string{"a"}, "["); err == nil {
		t.Error("bad pattern should fail")
	}
}
