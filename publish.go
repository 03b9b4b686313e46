package etl

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/changetracking"
	"github.com/opendatabs/etl/embargo"
)

// FingerprintStore remembers the last published state of artifacts.
type FingerprintStore interface {
	HasChanged(ctx context.Context, path string, method changetracking.Method, updateOnChange bool) (bool, error)
	Update(ctx context.Context, path string, method changetracking.Method) error
}

// Catalog resolves and publishes portal datasets.
type Catalog interface {
	ResolveUID(ctx context.Context, datasetID string) (string, error)
	Publish(ctx context.Context, uid string) error
}

// Uploader puts a local file into a remote directory.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteDir string) error
}

// EmbargoGate tells whether an artifact may be published.
type EmbargoGate interface {
	IsOver(ctx context.Context, artifact, descriptor string) (bool, error)
}

// Publisher uploads artifacts to the landing server and publishes their datasets.
type Publisher struct {
	Store   FingerprintStore
	FTP     Uploader
	Catalog Catalog
	Embargo EmbargoGate

	// NoFileCopy skips upload and publishing and leaves fingerprints untouched.
	NoFileCopy bool
}

// NewPublisher builds a Publisher using the wall-clock embargo gate.
func NewPublisher(store FingerprintStore, ftp Uploader, catalog Catalog) *Publisher {
	return &Publisher{
		Store:   store,
		FTP:     ftp,
		Catalog: catalog,
		Embargo: embargo.DefaultGate,
	}
}

// UpdateFTPAndODSP uploads localPath into remoteDir and publishes the dataset.
func (p *Publisher) UpdateFTPAndODSP(ctx context.Context, localPath, remoteDir, datasetID string) error {
	l := log.Ctx(ctx).With().Str("path", localPath).Str("dataset_id", datasetID).Logger()

	if err := p.FTP.Upload(ctx, localPath, remoteDir); err != nil {
		return xerrors.Errorf("failed to upload %s: %w", localPath, err)
	}
	l.Info().Str("remote_dir", remoteDir).Msg("uploaded")

	uid, err := p.Catalog.ResolveUID(ctx, datasetID)
	if err != nil {
		return xerrors.Errorf("failed to resolve dataset %s: %w", datasetID, err)
	}
	if err := p.Catalog.Publish(ctx, uid); err != nil {
		return xerrors.Errorf("failed to publish dataset %s: %w", datasetID, err)
	}

	return nil
}

// Publish publishes path to t when its embargo is over and it changed since
// the last publication, then records its fingerprint. It reports whether
// the artifact was published.
func (p *Publisher) Publish(ctx context.Context, path string, t Target) (bool, error) {
	l := log.Ctx(ctx).With().Str("path", path).Str("dataset_id", t.DatasetID).Logger()

	method := t.Method
	if method == "" {
		method = changetracking.Hash
	}

	if t.Embargo {
		over, err := p.Embargo.IsOver(ctx, path, "")
		if err != nil {
			return false, xerrors.Errorf("failed to check embargo: %w", err)
		}
		if !over {
			l.Info().Msg("embargo active")
			return false, nil
		}
	}

	changed, err := p.Store.HasChanged(ctx, path, method, false)
	if err != nil {
		return false, xerrors.Errorf("failed to check for changes: %w", err)
	}
	if !changed {
		l.Info().Msg("unchanged")
		return false, nil
	}

	if p.NoFileCopy {
		l.Info().Msg("no_file_copy is set, not publishing")
		return false, nil
	}

	if err := p.UpdateFTPAndODSP(ctx, path, t.RemoteDir, t.DatasetID); err != nil {
		return false, err
	}

	if err := p.Store.Update(ctx, path, method); err != nil {
		return true, xerrors.Errorf("failed to update fingerprint: %w", err)
	}

	return true, nil
}
