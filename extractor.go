package etl

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/ftp"
	"github.com/opendatabs/etl/httpclient"
)

// Extractor opens a job's source. The returned func releases it.
type Extractor interface {
	Extract(ctx context.Context, source string) (io.Reader, func(), error)
}

// FileExtractor reads local files.
type FileExtractor struct{}

// Extract opens the file at source.
func (e *FileExtractor) Extract(ctx context.Context, source string) (io.Reader, func(), error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open %s: %w", source, err)
	}
	return f, func() { f.Close() }, nil
}

// HTTPExtractor downloads sources over HTTP.
type HTTPExtractor struct {
	Client  *httpclient.Client
	Options []httpclient.RequestOption
}

// Extract GETs the URL source.
func (e *HTTPExtractor) Extract(ctx context.Context, source string) (io.Reader, func(), error) {
	resp, err := e.Client.Get(ctx, source, e.Options...)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to get %s: %w", source, err)
	}
	if err := httpclient.RaiseForStatus(resp); err != nil {
		return nil, nil, xerrors.Errorf("failed to get %s: %w", source, err)
	}

	log.Ctx(ctx).Debug().Str("url", source).Int("bytes", len(resp.Body())).Msg("downloaded")

	return bytes.NewReader(resp.Body()), func() {}, nil
}

// FTPExtractor downloads sources from an FTP server into LocalDir.
type FTPExtractor struct {
	Client   *ftp.Client
	LocalDir string
}

// Extract downloads the remote path source. A glob in the file name selects
// the last matching file in lexical order, the newest of dated exports.
func (e *FTPExtractor) Extract(ctx context.Context, source string) (io.Reader, func(), error) {
	dir, name := path.Split(source)

	req := ftp.DownloadRequest{RemoteDir: path.Clean(dir), LocalDir: e.LocalDir}
	if strings.ContainsAny(name, "*?[") {
		req.Pattern = name
		req.ListOnly = true

		files, err := e.Client.Download(ctx, req)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to list %s: %w", source, err)
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.RemoteName
		}
		sort.Strings(names)
		name = names[len(names)-1]

		req.Pattern = ""
		req.ListOnly = false
	}
	req.Files = []string{name}

	files, err := e.Client.Download(ctx, req)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to download %s: %w", source, err)
	}

	f, err := os.Open(files[0].LocalPath)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open %s: %w", files[0].LocalPath, err)
	}
	return f, func() { f.Close() }, nil
}
