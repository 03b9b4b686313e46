// Command parkhaus mirrors the occupancy of the city's car parks, pushes it
// to the realtime dataset and warns operators about unknown postal codes.
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl"
	"github.com/opendatabs/etl/config"
	"github.com/opendatabs/etl/contrib/jobs"
	"github.com/opendatabs/etl/httpclient"
	"github.com/opendatabs/etl/realtime"
)

const (
	datasetID = "100014"
	remoteDir = "parkendd"
)

var header = []string{"name", "plz", "free", "total", "published"}

func main() {
	var (
		source  = flag.String("source", "", "URL of the occupancy export")
		pushURL = flag.String("push_url", "", "realtime push endpoint, empty to skip pushing")
		dataDir = flag.String("data_dir", "data", "directory of the artifact and postal code lists")
		secrets = flag.String("secrets", config.DefaultSecretsFile, "secrets file")
	)
	flag.Parse()

	cfg, err := config.Load(*secrets)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Require(config.SectionFTP, config.SectionPortal, config.SectionEmail); err != nil {
		log.Fatal().Err(err).Msg("missing configuration")
	}

	hc := cfg.HTTPClient()
	mailer := cfg.EmailNotifier()
	mailer.OnlyErrors = true

	opts := append(cfg.Options(), etl.WithPublisher(cfg.Publisher(hc)), etl.WithNotifier(mailer))
	e, err := etl.New(opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build ETL")
	}

	ctx := context.Background()
	e.MustAddJob(ctx, newJob(hc, mailer, *source, *pushURL, cfg.Portal.PushKey, *dataDir))

	if err := e.Run(ctx); err != nil {
		os.Exit(1)
	}
}

func newJob(hc *httpclient.Client, mailer jobs.Mailer, source, pushURL, pushKey, dataDir string) *etl.Job {
	type contextKey string
	const fetchedKey contextKey = "fetched"

	preprocessor := func(ctx context.Context, _ string) (context.Context, error) {
		return context.WithValue(ctx, fetchedKey, time.Now().In(time.UTC).Format(time.RFC3339)), nil
	}

	// Source columns: name;street;plz;free;total
	projector := func(ctx context.Context, r []string) ([]string, error) {
		if len(r) < 5 {
			return nil, xerrors.Errorf("expected 5 columns, got %d", len(r))
		}
		if strings.TrimSpace(r[0]) == "" {
			return nil, nil
		}

		fetched, _ := ctx.Value(fetchedKey).(string)

		return []string{
			strings.TrimSpace(r[0]),
			strings.TrimSpace(r[2]),
			jobs.CleanNumber(r[3]),
			jobs.CleanNumber(r[4]),
			fetched,
		}, nil
	}

	output := filepath.Join(dataDir, "parkhaus.csv")
	watch := &jobs.PLZWatch{
		Known:     filepath.Join(dataDir, "plz.csv"),
		Candidate: filepath.Join(dataDir, "new_plz.csv"),
		Mailer:    mailer,
		Subject:   "Parkhaus: postal codes changed",
	}

	negative := &jobs.RangeCheck{
		Column:   2,
		Min:      0,
		Max:      math.Inf(1),
		Header:   header,
		Rejected: filepath.Join(dataDir, "parkhaus_rejected.csv"),
		Mailer:   mailer,
		Subject:  "Parkhaus: negative free parking count",
	}

	loaders := etl.MultiLoader{watch.Loader(&etl.CSVLoader{Path: output, Header: header}, 1)}
	if pushURL != "" {
		ds := realtime.NewDataset(realtime.New(hc), pushURL, "", pushKey)
		loaders = append(loaders, &etl.RealtimeLoader{Transport: ds, Header: header})
	}

	return &etl.Job{
		Name:            "parkhaus",
		Source:          source,
		Extractor:       &etl.HTTPExtractor{Client: hc},
		Encoding:        charmap.Windows1252,
		Parser:          etl.DelimitedParser(';'),
		SkipLeadingRows: 1,
		Preprocessor:    preprocessor,
		Projector:       projector,

		Header: header,
		Output: output,
		Loader: negative.Loader(loaders),
		Target: &etl.Target{RemoteDir: remoteDir, DatasetID: datasetID},
	}
}
