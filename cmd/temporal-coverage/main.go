// Command temporal-coverage recomputes the temporal coverage metadata of
// portal datasets from their data.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/config"
	"github.com/opendatabs/etl/coverage"
)

func main() {
	var (
		datasetID = flag.String("dataset", "", "analyze one dataset instead of the whole catalog")
		dryRun    = flag.Bool("dry_run", false, "compute coverage without writing metadata")
		secrets   = flag.String("secrets", config.DefaultSecretsFile, "secrets file")
	)
	flag.Parse()

	cfg, err := config.Load(*secrets)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := cfg.Logger()
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *datasetID, *dryRun); err != nil {
		logger.Error().Err(err).Msg("temporal coverage failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, datasetID string, dryRun bool) error {
	if err := cfg.Require(config.SectionPortal); err != nil {
		return err
	}

	client := cfg.PortalClient(cfg.HTTPClient())
	a := coverage.NewAnalyzer(client)
	a.DryRun = dryRun

	ids := []string{datasetID}
	if datasetID == "" {
		datasets, err := client.Datasets(ctx)
		if err != nil {
			return xerrors.Errorf("failed to list datasets: %w", err)
		}

		ids = ids[:0]
		for _, d := range datasets {
			ids = append(ids, d.DatasetID)
		}
	}

	var errs error
	changed := 0
	for _, id := range ids {
		res, err := a.Analyze(ctx, id)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("dataset_id", id).Msg("failed to analyze dataset")
			errs = multierror.Append(errs, xerrors.Errorf("dataset %s: %w", id, err))
			continue
		}
		if res.Changed {
			changed++
		}
	}

	log.Ctx(ctx).Info().Int("datasets", len(ids)).Int("changed", changed).Bool("dry_run", dryRun).Msg("done")

	return errs
}
