package jobs_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatabs/etl/contrib/jobs"
)

func TestRangeCheck_Loader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mailer := &testMailer{}
	c := &jobs.RangeCheck{
		Column:   2,
		Min:      0,
		Max:      math.Inf(1),
		Header:   []string{"name", "plz", "free"},
		Rejected: filepath.Join(dir, "rejected.csv"),
		Mailer:   mailer,
		Subject:  "Negative free parking",
	}

	tl := &testLoader{}
	records := [][]string{
		{"Zentrum", "4051", "12"},
		{"Messe", "4058", "-3"},
		{"Bahnhof", "4052", ""},
	}
	require.NoError(t, c.Loader(tl).Load(context.Background(), records))

	require.Equal(t, [][]string{{"Zentrum", "4051", "12"}, {"Bahnhof", "4052", ""}}, tl.result)

	b, err := os.ReadFile(c.Rejected)
	require.NoError(t, err)
	require.Equal(t, "name,plz,free\nMesse,4058,-3\n", string(b))

	require.Len(t, mailer.messages, 1)
	require.Equal(t, "Negative free parking", mailer.messages[0].Subject)
	require.Equal(t, b, mailer.messages[0].Attachments[0].Content)
}

func TestRangeCheck_nothingRejected(t *testing.T) {
	t.Parallel()

	mailer := &testMailer{}
	c := &jobs.RangeCheck{Column: 0, Max: 10, Rejected: filepath.Join(t.TempDir(), "rejected.csv"), Mailer: mailer}

	tl := &testLoader{}
	require.NoError(t, c.Loader(tl).Load(context.Background(), [][]string{{"1"}, {"10"}}))
	require.Len(t, tl.result, 2)
	require.Empty(t, mailer.messages)
	require.NoFileExists(t, c.Rejected)
}

func TestRangeCheck_Split_invalid(t *testing.T) {
	t.Parallel()

	c := &jobs.RangeCheck{Column: 1, Max: 10}

	_, _, err := c.Split([][]string{{"a", "many"}})
	require.Error(t, err)

	_, _, err = c.Split([][]string{{"a"}})
	require.Error(t, err)
}
