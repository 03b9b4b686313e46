package etl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/opendatabs/etl/changetracking"
)

type testExtractor struct {
	sources map[string]string
}

func newTestExtractor(sources map[string]string) *testExtractor {
	return &testExtractor{sources: sources}
}

func (e *testExtractor) Extract(_ context.Context, source string) (io.Reader, func(), error) {
	s, ok := e.sources[source]
	if !ok {
		return nil, nil, fmt.Errorf("no source %s", source)
	}
	return bytes.NewBufferString(s), func() {}, nil
}

type testLoader struct {
	result [][]string
}

func (l *testLoader) Load(_ context.Context, rs [][]string) error {
	l.result = rs
	return nil
}

type testNotifier struct {
	results []*Result
}

func (n *testNotifier) Notify(_ context.Context, r *Result) error {
	n.results = append(n.results, r)
	return nil
}

func TestETL(t *testing.T) {
	projector := func(_ context.Context, r []string) ([]string, error) {
		t, err := time.Parse("02.01.2006", r[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %v", err)
		}

		r[0] = t.Format("2006-01-02")

		return r, nil
	}

	tl := &testLoader{}
	tn := &testNotifier{}

	job := &Job{
		Name:      "test-job",
		Source:    "test/source.csv",
		Extractor: newTestExtractor(map[string]string{"test/source.csv": "21.11.2020,foo,123"}),
		Parser:    CSVParser(),
		Projector: projector,
		Loader:    tl,
		Notifier:  tn,
	}

	ctx := context.Background()

	e, err := New(WithPrettyLogging(), WithLogLevel("debug"))
	if err != nil {
		t.Fatal(err)
	}
	e.MustAddJob(ctx, job)

	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(tl.result) != 1 {
		t.Fatalf("Size of result records should be 1, but %d.", len(tl.result))
	}

	if len(tl.result[0]) != 3 {
		t.Fatalf("Size of each record be 3, but %d", len(tl.result[0]))
	}

	if tl.result[0][0] != "2020-11-21" {
		t.Errorf(`results[0][0] should be "2020-11-21", but "%s"`, tl.result[0][0])
	}

	if tl.result[0][1] != "foo" {
		t.Errorf(`results[0][1] should be "foo", but "%s"`, tl.result[0][1])
	}

	if len(tn.results) != 1 || tn.results[0].Error != nil || tn.results[0].Rows != 1 {
		t.Errorf("notifier should receive one successful result, but %+v", tn.results)
	}
}

func TestETL_error(t *testing.T) {
	projector := func(_ context.Context, r []string) ([]string, error) {
		return nil, fmt.Errorf("projector error")
	}

	tn := &testNotifier{}
	second := &testLoader{}

	ctx := context.Background()

	e, err := New(WithLogLevel("debug"), WithNotifier(tn))
	if err != nil {
		t.Fatal(err)
	}
	e.MustAddJob(ctx, &Job{
		Name:      "failing",
		Source:    "a",
		Extractor: newTestExtractor(map[string]string{"a": "1,2"}),
		Projector: projector,
		Loader:    &testLoader{},
	})
	e.MustAddJob(ctx, &Job{
		Name:      "following",
		Source:    "b",
		Extractor: newTestExtractor(map[string]string{"b": "3,4"}),
		Loader:    second,
	})

	err = e.Run(ctx)
	if err == nil {
		t.Fatal("expected error but no error occurred")
	}
	if !strings.Contains(err.Error(), "job failing") {
		t.Errorf("error should name the failing job, but %v", err)
	}

	if len(second.result) != 1 {
		t.Errorf("following job should still run, but loaded %d rows", len(second.result))
	}
	if len(tn.results) != 2 || tn.results[0].Error == nil {
		t.Errorf("default notifier should receive both results, but %+v", tn.results)
	}
}

func TestETL_AddJob(t *testing.T) {
	ctx := context.Background()

	e, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if err := e.AddJob(ctx, &Job{Output: "x.csv"}); err == nil {
		t.Error("job without name should be rejected")
	}
	if err := e.AddJob(ctx, &Job{Name: "no-output"}); err == nil {
		t.Error("job without output or loader should be rejected")
	}
	if err := e.AddJob(ctx, &Job{Name: "no-publisher", Output: "x.csv", Target: &Target{DatasetID: "1"}}); err == nil {
		t.Error("job with target should need a publisher")
	}

	if _, err := New(WithLogLevel("loud")); err == nil {
		t.Error("invalid log level should be rejected")
	}
	if _, err := New(WithPublisher(nil)); err == nil {
		t.Error("nil publisher should be rejected")
	}

	j := &Job{Name: "defaults", Output: "x.csv", Target: &Target{DatasetID: "1"}}
	e, _ = New(WithPublisher(&Publisher{}))
	if err := e.AddJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, ok := j.Extractor.(*FileExtractor); !ok {
		t.Errorf("default extractor should be *FileExtractor, but %T", j.Extractor)
	}
	if l, ok := j.Loader.(*CSVLoader); !ok || l.Path != "x.csv" {
		t.Errorf("default loader should write x.csv, but %+v", j.Loader)
	}
	if j.Target.Method != changetracking.Hash {
		t.Errorf("default method should be hash, but %s", j.Target.Method)
	}
}
