package etl

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

// Parser parses a source into records.
type Parser func(context.Context, io.Reader) ([][]string, error)

// CSVParser provides a parser to parse comma separated files.
func CSVParser() Parser {
	return DelimitedParser(',')
}

// DelimitedParser parses files separated by sep, e.g. ';' for most
// exports of cantonal systems. Rows may have varying lengths.
func DelimitedParser(sep rune) Parser {
	return func(_ context.Context, r io.Reader) ([][]string, error) {
		cr := csv.NewReader(r)
		cr.Comma = sep
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		return cr.ReadAll()
	}
}

// PartialCSVParser skips free-text lines before and after the CSV body.
// lineSep is the line separator of the source.
func PartialCSVParser(skipHeadRows, skipTailRows uint, lineSep string) Parser {
	return func(ctx context.Context, r io.Reader) ([][]string, error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, xerrors.Errorf("failed to read source: %w", err)
		}

		lines := strings.Split(strings.TrimSuffix(string(b), lineSep), lineSep)
		if int(skipHeadRows+skipTailRows) > len(lines) {
			return nil, xerrors.Errorf("cannot skip %d+%d of %d lines", skipHeadRows, skipTailRows, len(lines))
		}
		body := lines[skipHeadRows : uint(len(lines))-skipTailRows]

		return CSVParser()(ctx, strings.NewReader(strings.Join(body, "\n")))
	}
}

var errNoSheet = errors.New("no sheet found")

// XLSParser parses a sheet of a legacy Excel workbook. Empty rows are dropped.
func XLSParser(sheet int) Parser {
	getRow := func(s *xls.WorkSheet, row int) (r *xls.Row, ok bool) {
		defer func() { recover() }()

		return s.Row(row), true
	}

	return func(_ context.Context, r io.Reader) ([][]string, error) {
		wb, err := xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %w", err)
		}

		s := wb.GetSheet(sheet)
		if s == nil {
			return nil, xerrors.Errorf("sheet %d: %w", sheet, errNoSheet)
		}

		records := [][]string{}

		for i := 0; i <= int(s.MaxRow); i++ {
			row, ok := getRow(s, i)
			if !ok || row == nil {
				continue
			}

			record := []string{}
			empty := true
			for col := row.FirstCol(); col < row.LastCol(); col++ {
				v := strings.TrimSpace(row.Col(col))
				if v != "" {
					empty = false
				}
				record = append(record, v)
			}
			if empty {
				continue
			}

			records = append(records, record)
		}

		return records, nil
	}
}
