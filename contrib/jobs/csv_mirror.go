package jobs

import (
	"context"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/opendatabs/etl"
)

// CSVMirror builds a job that republishes a delimited export as UTF-8 CSV.
// Cells are trimmed, Swiss dates become ISO dates and fully empty rows are
// dropped. The source header is kept.
func CSVMirror(name, source string, ex etl.Extractor, enc encoding.Encoding, sep rune, dst Destination, n etl.Notifier) *etl.Job {
	projector := func(_ context.Context, r []string) ([]string, error) {
		empty := true
		out := make([]string, len(r))
		for i, v := range r {
			v = strings.TrimSpace(v)
			if d, ok := ISODate(v); ok {
				v = d
			}
			if v != "" {
				empty = false
			}
			out[i] = v
		}
		if empty {
			return nil, nil
		}
		return out, nil
	}

	return &etl.Job{
		Name:      name,
		Source:    source,
		Extractor: ex,

		Encoding:  enc,
		Parser:    etl.DelimitedParser(sep),
		Projector: projector,
		Notifier:  n,

		Output: dst.Output,
		Target: dst.Target,
	}
}
