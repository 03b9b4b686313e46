package embargo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(artifact, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(DescriptorPath(artifact), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return artifact
}

func TestDescriptorPath(t *testing.T) {
	if got := DescriptorPath("data/out.csv"); got != "data/out_embargo.txt" {
		t.Errorf("DescriptorPath should be data/out_embargo.txt, but %s", got)
	}
	if got := DescriptorPath("data/out"); got != "data/out_embargo.txt" {
		t.Errorf("DescriptorPath should be data/out_embargo.txt, but %s", got)
	}
}

func TestIsOver(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	past := writeDescriptor(t, now.Add(-time.Minute).Format(time.RFC3339)+"\n")
	over, err := IsOver(ctx, past, "")
	if err != nil {
		t.Fatal(err)
	}
	if !over {
		t.Error("embargo one minute ago should be over")
	}

	future := writeDescriptor(t, now.Add(time.Minute).Format(time.RFC3339))
	over, err = IsOver(ctx, future, "")
	if err != nil {
		t.Fatal(err)
	}
	if over {
		t.Error("embargo in one minute should not be over")
	}
}

func TestIsOver_Naive(t *testing.T) {
	artifact := writeDescriptor(t, "2099-01-01T00:00\nignored")

	over, err := IsOver(context.Background(), artifact, "")
	if err != nil {
		t.Fatal(err)
	}
	if over {
		t.Error("embargo until 2099 should not be over")
	}
}

func TestGate_NaiveIsLocal(t *testing.T) {
	artifact := writeDescriptor(t, "2024-07-01 12:00")

	// 12:00 in Zurich during summer time is 10:00 UTC.
	g := &Gate{Now: func() time.Time { return time.Date(2024, 7, 1, 10, 0, 1, 0, time.UTC) }}
	over, err := g.IsOver(context.Background(), artifact, "")
	if err != nil {
		t.Fatal(err)
	}
	if !over {
		t.Error("embargo should be over one second after 10:00 UTC")
	}

	g.Now = func() time.Time { return time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC) }
	over, err = g.IsOver(context.Background(), artifact, "")
	if err != nil {
		t.Fatal(err)
	}
	if over {
		t.Error("embargo should not be over at exactly 10:00 UTC")
	}
}

func TestIsOver_Errors(t *testing.T) {
	ctx := context.Background()

	malformed := writeDescriptor(t, "next tuesday")
	if _, err := IsOver(ctx, malformed, ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("error should be ErrMalformed, but %v", err)
	}

	empty := writeDescriptor(t, "")
	if _, err := IsOver(ctx, empty, ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("error should be ErrMalformed, but %v", err)
	}

	missing := filepath.Join(t.TempDir(), "out.csv")
	if _, err := IsOver(ctx, missing, ""); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should be fs.ErrNotExist, but %v", err)
	}
}

func TestIsOver_ExplicitDescriptor(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "custom.txt")
	if err := os.WriteFile(desc, []byte("2000-01-01T00:00:00+01:00"), 0o644); err != nil {
		t.Fatal(err)
	}

	over, err := IsOver(context.Background(), filepath.Join(dir, "whatever.csv"), desc)
	if err != nil {
		t.Fatal(err)
	}
	if !over {
		t.Error("embargo in 2000 should be over")
	}
}
