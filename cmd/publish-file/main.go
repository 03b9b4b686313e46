// Command publish-file uploads a local artifact to the landing FTP server
// and publishes its dataset when the artifact changed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"github.com/opendatabs/etl"
	"github.com/opendatabs/etl/changetracking"
	"github.com/opendatabs/etl/config"
)

func main() {
	var (
		path        = flag.String("path", "", "local artifact")
		remoteDir   = flag.String("remote_dir", "", "remote directory on the FTP server")
		datasetID   = flag.String("dataset_id", "", "portal dataset to publish")
		method      = flag.String("method", string(changetracking.Hash), "change detection method: hash or modification_date")
		withEmbargo = flag.Bool("embargo", false, "honor the artifact's embargo descriptor")
		noFileCopy  = flag.Bool("no_file_copy", false, "only report whether the artifact would be published")
		secrets     = flag.String("secrets", config.DefaultSecretsFile, "secrets file")
	)
	flag.Parse()

	if *path == "" || *datasetID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*secrets)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := cfg.Logger()
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt)
	defer stop()

	if err := cfg.Require(config.SectionFTP, config.SectionPortal); err != nil {
		logger.Fatal().Err(err).Msg("missing configuration")
	}

	p := cfg.Publisher(cfg.HTTPClient())
	p.NoFileCopy = *noFileCopy

	published, err := p.Publish(ctx, *path, etl.Target{
		RemoteDir: *remoteDir,
		DatasetID: *datasetID,
		Method:    changetracking.Method(*method),
		Embargo:   *withEmbargo,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish")
		os.Exit(1)
	}

	logger.Info().Str("path", *path).Bool("published", published).Msg("done")
}
