/*
Package etl is a small ETL framework for the canton's open data jobs.

A job extracts a source (local file, URL or landing FTP server), parses and
projects its rows, writes an artifact and, when it changed since the last
run, uploads it to the landing FTP server and publishes the portal dataset.

Getting started

	package main

	import (
		"context"
		"os"
		"time"

		"golang.org/x/text/encoding/charmap"
		"golang.org/x/xerrors"

		"github.com/opendatabs/etl"
		"github.com/opendatabs/etl/changetracking"
		"github.com/opendatabs/etl/config"
		"github.com/opendatabs/etl/ftp"
		"github.com/opendatabs/etl/httpclient"
		"github.com/opendatabs/etl/portal"
	)

	func main() {
		cfg, err := config.Load("")
		if err != nil {
			panic(err)
		}
		if err := cfg.Require(config.SectionFTP, config.SectionPortal); err != nil {
			panic(err)
		}

		hc := httpclient.New()
		publisher := etl.NewPublisher(
			changetracking.NewStore(cfg.FingerprintDir),
			ftp.New(cfg.FTP.Server, cfg.FTP.User, cfg.FTP.Password),
			portal.New(hc, cfg.Portal.APIKey),
		)

		e, err := etl.New(etl.WithLogLevel(cfg.Log.Level), etl.WithPublisher(publisher))
		if err != nil {
			panic(err)
		}
		e.MustAddJob(context.Background(), newJob(hc))

		if err := e.Run(context.Background()); err != nil {
			os.Exit(1)
		}
	}

	func newJob(hc *httpclient.Client) *etl.Job {
		// Dates come as "02.01.2006" and are published as "2006-01-02".
		projector := func(_ context.Context, r []string) ([]string, error) {
			t, err := time.Parse("02.01.2006", r[0])
			if err != nil {
				return nil, xerrors.Errorf("column 0 cannot parse as a date: %w", err)
			}
			r[0] = t.Format("2006-01-02")
			return r, nil
		}

		return &etl.Job{
			Name:            "parkhaus",
			Source:          "https://example.bs.ch/export.csv",
			Extractor:       &etl.HTTPExtractor{Client: hc},
			Encoding:        charmap.Windows1252,
			Parser:          etl.DelimitedParser(';'),
			Projector:       projector,
			SkipLeadingRows: 1,
			Header:          []string{"datum", "parkhaus", "belegung"},
			Output:          "data/parkhaus.csv",
			Target:          &etl.Target{RemoteDir: "mobilitaet/parkhaus", DatasetID: "100014"},
		}
	}
*/
package etl
