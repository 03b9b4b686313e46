// Package ftp transfers artifacts to and from the landing server.
//
// Every operation opens its own control connection, authenticates, runs and
// quits. Operations are retried on FTP protocol errors and on broken, reset
// or refused connections, EOF and missing files: six attempts, ten seconds
// apart.
package ftp

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/retry"
)

const (
	// DefaultTimeout bounds dialing and each command.
	DefaultTimeout = 60 * time.Second

	defaultAttempts = 6
	defaultDelay    = 10 * time.Second
)

// RemoteFile describes a file selected by Download.
type RemoteFile struct {
	RemotePath string
	RemoteName string
	LocalPath  string
}

// DownloadRequest selects files in RemoteDir either by explicit name or by
// glob Pattern. With ListOnly nothing is transferred.
type DownloadRequest struct {
	Files     []string
	Pattern   string
	RemoteDir string
	LocalDir  string
	ListOnly  bool
}

// conn is the subset of *ftp.ServerConn the client uses.
type conn interface {
	Login(user, password string) error
	ChangeDir(dir string) error
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
	NameList(path string) ([]string, error)
	Rename(from, to string) error
	MakeDir(path string) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (conn, error)

// Client talks to one FTP server.
type Client struct {
	Addr     string
	User     string
	Password string
	Timeout  time.Duration

	// Retry is applied to every operation. Retry.Retryable is overridden by IsTransient.
	Retry retry.Policy

	dial dialFunc
}

// New builds a Client for addr ("host" or "host:port").
func New(addr, user, password string) *Client {
	if !strings.Contains(addr, ":") {
		addr += ":21"
	}

	return &Client{
		Addr:     addr,
		User:     user,
		Password: password,
		Timeout:  DefaultTimeout,
		Retry: retry.Policy{
			Attempts: defaultAttempts,
			Delay:    defaultDelay,
			Backoff:  1,
		},
		dial: dialServer,
	}
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func dialServer(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// session opens an authenticated connection, runs fn and quits.
func (c *Client) session(ctx context.Context, fn func(conn) error) error {
	p := c.Retry
	p.Retryable = IsTransient

	return retry.Do(ctx, p, func(ctx context.Context) error {
		sc, err := c.dial(ctx, c.Addr, c.Timeout)
		if err != nil {
			return xerrors.Errorf("failed to connect to %s: %w", c.Addr, err)
		}
		defer func() { _ = sc.Quit() }()

		if err := sc.Login(c.User, c.Password); err != nil {
			return xerrors.Errorf("failed to login to %s as %s: %w", c.Addr, c.User, err)
		}

		return fn(sc)
	})
}

// Upload stores localPath in remoteDir under its bare filename. remoteDir
// must exist; see Ensure.
func (c *Client) Upload(ctx context.Context, localPath, remoteDir string) error {
	l := log.Ctx(ctx)
	name := filepath.Base(localPath)

	l.Info().Str("path", localPath).Str("remote_dir", remoteDir).Msgf("uploading %s to ftp://%s/%s", name, c.Addr, remoteDir)

	return c.session(ctx, func(sc conn) error {
		f, err := os.Open(localPath)
		if err != nil {
			return xerrors.Errorf("failed to open %s: %w", localPath, err)
		}
		defer f.Close()

		if err := sc.ChangeDir(remoteDir); err != nil {
			return xerrors.Errorf("failed to change to %s: %w", remoteDir, err)
		}

		if err := sc.Stor(name, f); err != nil {
			return xerrors.Errorf("failed to store %s in %s: %w", name, remoteDir, err)
		}

		return nil
	})
}

// Download fetches the files selected by req into req.LocalDir.
func (c *Client) Download(ctx context.Context, req DownloadRequest) ([]RemoteFile, error) {
	l := log.Ctx(ctx)

	var files []RemoteFile

	err := c.session(ctx, func(sc conn) error {
		files = nil

		if err := sc.ChangeDir(req.RemoteDir); err != nil {
			return xerrors.Errorf("failed to change to %s: %w", req.RemoteDir, err)
		}

		names := req.Files
		if len(names) == 0 && req.Pattern != "" {
			all, err := sc.NameList(".")
			if err != nil {
				return xerrors.Errorf("failed to list %s: %w", req.RemoteDir, err)
			}
			names, err = Match(all, req.Pattern)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return xerrors.Errorf("%s in %s: %w", req.Pattern, req.RemoteDir, ErrNoMatch)
			}
		}

		for _, n := range names {
			files = append(files, RemoteFile{
				RemotePath: path.Join(req.RemoteDir, n),
				RemoteName: n,
				LocalPath:  filepath.Join(req.LocalDir, path.Base(n)),
			})
		}

		if req.ListOnly {
			return nil
		}

		if err := os.MkdirAll(req.LocalDir, 0o755); err != nil {
			return xerrors.Errorf("failed to create %s: %w", req.LocalDir, err)
		}

		for _, f := range files {
			l.Info().Str("remote_path", f.RemotePath).Str("path", f.LocalPath).Msg("downloading")
			if err := retrieve(sc, f.RemoteName, f.LocalPath); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func retrieve(sc conn, name, localPath string) error {
	r, err := sc.Retr(name)
	if err != nil {
		return xerrors.Errorf("failed to retrieve %s: %w", name, err)
	}
	defer r.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", localPath, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return xerrors.Errorf("failed to write %s: %w", localPath, err)
	}

	return out.Close()
}

// Match filters names with shell glob semantics.
func Match(names []string, pattern string) ([]string, error) {
	var out []string
	for _, n := range names {
		ok, err := path.Match(pattern, path.Base(n))
		if err != nil {
			return nil, xerrors.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, path.Base(n))
		}
	}
	return out, nil
}

// Rename renames fromPath to toName.
func (c *Client) Rename(ctx context.Context, fromPath, toName string) error {
	return c.session(ctx, func(sc conn) error {
		if err := sc.Rename(fromPath, toName); err != nil {
			return xerrors.Errorf("failed to rename %s to %s: %w", fromPath, toName, err)
		}
		return nil
	})
}

// Ensure creates folder. An already existing folder is not an error.
func (c *Client) Ensure(ctx context.Context, folder string) error {
	l := log.Ctx(ctx)

	return c.session(ctx, func(sc conn) error {
		err := sc.MakeDir(folder)
		if err == nil {
			l.Info().Str("remote_dir", folder).Msg("created remote folder")
			return nil
		}
		if isExists(err) {
			l.Debug().Str("remote_dir", folder).Msg("remote folder exists")
			return nil
		}
		return xerrors.Errorf("failed to create %s: %w", folder, err)
	})
}
