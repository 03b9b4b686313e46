package etl

import (
	"bytes"
	"context"
	"fmt"
	"testing"
)

func assertEqual(t *testing.T, expected [][]string, actual [][]string) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("expected %d length, but %d", len(expected), len(actual))
	}

	for i := range expected {
		if len(expected[i]) != len(actual[i]) {
			t.Errorf("expected length of actual[%d] is %d, but %d", i, len(expected[i]), len(actual[i]))
			continue
		}

		for j := range expected[i] {
			if expected[i][j] != actual[i][j] {
				t.Errorf("expected actual[%d][%d] is '%s', but '%s'", i, j, expected[i][j], actual[i][j])
			}
		}
	}
}

func Test_PartialCSVParser(t *testing.T) {
	t.Parallel()

	cases := []struct {
		skipHeadRows uint
		skipTailRows uint
		sep          string
		body         string
		expect       [][]string
	}{
		{
			skipHeadRows: 3,
			skipTailRows: 3,
			sep:          "\n",
			body:         "foo\n\nbar\n1,2,3\n4,5,6\n\nbaz\nqux",
			expect:       [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
		},
		{
			skipHeadRows: 0,
			skipTailRows: 3,
			sep:          "\n",
			body:         "1,2,3\n4,5,6\n\nbaz\nqux",
			expect:       [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
		},
		{
			skipHeadRows: 3,
			skipTailRows: 0,
			sep:          "\n",
			body:         "foo\n\nbar\n1,2,3\n4,5,6\n",
			expect:       [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
		},
		{
			skipHeadRows: 3,
			skipTailRows: 3,
			sep:          "\r\n",
			body:         "foo\r\n\r\nbar\r\n1,2,3\r\n4,5,6\r\n\r\nbaz\r\nqux",
			expect:       [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
		},
	}

	ctx := context.Background()
	for _, c := range cases {
		c := c
		t.Run(
			fmt.Sprintf("head=%d,tail=%d,sep=%q", c.skipHeadRows, c.skipTailRows, c.sep),
			func(t *testing.T) {
				t.Parallel()

				f := PartialCSVParser(c.skipHeadRows, c.skipTailRows, c.sep)
				actual, err := f(ctx, bytes.NewReader([]byte(c.body)))

				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}

				assertEqual(t, c.expect, actual)
			},
		)
	}

	if _, err := PartialCSVParser(5, 5, "\n")(ctx, bytes.NewReader([]byte("a\nb"))); err == nil {
		t.Error("skipping more lines than the source has should fail")
	}
}

func Test_DelimitedParser(t *testing.T) {
	actual, err := DelimitedParser(';')(context.Background(), bytes.NewBufferString("a;b;c\n1;\"2;3\"\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	assertEqual(t, [][]string{{"a", "b", "c"}, {"1", "2;3"}}, actual)
}

func Test_XLSParser_invalid(t *testing.T) {
	if _, err := XLSParser(0)(context.Background(), bytes.NewBufferString("not a workbook")); err == nil {
		t.Error("expected error but no error occurred")
	}
}
