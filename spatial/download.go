package spatial

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
	"github.com/opendatabs/etl/portal"
)

// Downloader fetches layers from the portal's shapefile export.
type Downloader struct {
	HTTP       *httpclient.Client
	ExploreURL string
	// Dir holds one extracted directory per layer.
	Dir string
}

// NewDownloader builds a Downloader extracting into dir.
func NewDownloader(hc *httpclient.Client, dir string) *Downloader {
	return &Downloader{HTTP: hc, ExploreURL: portal.DefaultExploreURL, Dir: dir}
}

// Download fetches the zipped shapefile of a dataset, extracts it into
// Dir/<layerID> and loads it in LV95.
func (d *Downloader) Download(ctx context.Context, layerID string) (*Layer, error) {
	l := log.Ctx(ctx)

	u := fmt.Sprintf("%s/catalog/datasets/%s/exports/shp", d.ExploreURL, url.PathEscape(layerID))
	resp, err := d.HTTP.Get(ctx, u)
	if err != nil {
		return nil, xerrors.Errorf("failed to download layer %s: %w", layerID, err)
	}
	if err := httpclient.RaiseForStatus(resp); err != nil {
		return nil, xerrors.Errorf("failed to download layer %s: %w", layerID, err)
	}

	dir := filepath.Join(d.Dir, layerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Errorf("failed to create %s: %w", dir, err)
	}

	archive := filepath.Join(dir, layerID+".zip")
	if err := os.WriteFile(archive, resp.Body(), 0o644); err != nil {
		return nil, xerrors.Errorf("failed to write %s: %w", archive, err)
	}

	shpPath, err := extract(archive, dir)
	if err != nil {
		return nil, err
	}
	l.Info().Str("layer", layerID).Str("path", shpPath).Msg("layer downloaded")

	layer, err := LoadShapefile(shpPath)
	if err != nil {
		return nil, err
	}
	return layer.Project(LV95), nil
}

// extract unpacks archive into dir and returns the path of the .shp file.
func extract(archive, dir string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", xerrors.Errorf("failed to open %s: %w", archive, err)
	}
	defer zr.Close()

	var shpPath string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(f.Name)
		dst := filepath.Join(dir, name)
		if err := extractFile(f, dst); err != nil {
			return "", err
		}
		if strings.EqualFold(filepath.Ext(name), ".shp") {
			shpPath = dst
		}
	}

	if shpPath == "" {
		return "", xerrors.Errorf("no shapefile in %s", archive)
	}
	return shpPath, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return xerrors.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return xerrors.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
