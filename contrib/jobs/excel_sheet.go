package jobs

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/opendatabs/etl"
)

// ExcelSheet builds a job publishing one sheet of a legacy Excel workbook.
// The sheet's first row is replaced by header; dates and numbers are
// normalized.
func ExcelSheet(name, source string, ex etl.Extractor, sheet int, header []string, dst Destination, n etl.Notifier) *etl.Job {
	projector := func(_ context.Context, r []string) ([]string, error) {
		if len(r) > len(header) {
			return nil, xerrors.Errorf("%d values for %d columns", len(r), len(header))
		}

		out := make([]string, len(header))
		for i, v := range r {
			if d, ok := ISODate(v); ok {
				out[i] = d
				continue
			}
			out[i] = CleanNumber(v)
		}
		return out, nil
	}

	return &etl.Job{
		Name:            name,
		Source:          source,
		Extractor:       ex,
		SkipLeadingRows: 1,

		Parser:    etl.XLSParser(sheet),
		Projector: projector,
		Notifier:  n,

		Header: header,
		Output: dst.Output,
		Target: dst.Target,
	}
}
