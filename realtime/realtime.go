// Package realtime pushes records to, and deletes records from, the portal's
// per-dataset realtime endpoints.
//
// The endpoints upsert (or delete) by the dataset's declared key fields, so
// resending a whole push after a failure is always correct. Pushes larger
// than ChunkSize are split into contiguous windows sent in order.
package realtime

import (
	"context"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
)

// DefaultChunkSize is the number of records sent per request.
const DefaultChunkSize = 25000

// Record maps field names to JSON-serializable scalars.
type Record map[string]any

// Transport pushes and deletes records of one dataset.
type Transport interface {
	Push(ctx context.Context, records []Record) error
	Delete(ctx context.Context, records []Record) error
}

// KeyLocation tells where the push key is sent.
type KeyLocation int

const (
	// KeyInQuery sends the key as the "pushkey" query parameter.
	KeyInQuery KeyLocation = iota
	// KeyInHeader sends the key in the Authorization header.
	KeyInHeader
)

// Client sends records to realtime endpoints.
type Client struct {
	http *httpclient.Client

	ChunkSize   int
	KeyLocation KeyLocation
}

// New builds a Client on hc.
func New(hc *httpclient.Client) *Client {
	return &Client{http: hc, ChunkSize: DefaultChunkSize}
}

// Push upserts records at url.
func (c *Client) Push(ctx context.Context, url, key string, records []Record) error {
	return c.send(ctx, "push", url, key, records)
}

// Delete removes records at url by key fields.
func (c *Client) Delete(ctx context.Context, url, key string, records []Record) error {
	return c.send(ctx, "delete", url, key, records)
}

func (c *Client) send(ctx context.Context, op, url, key string, records []Record) error {
	l := log.Ctx(ctx)

	size := c.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := Chunks(len(records), size)
	l.Info().Str("op", op).Int("records", len(records)).Int("chunks", len(chunks)).Msgf("%s %d records", op, len(records))

	for i, w := range chunks {
		body, err := encode(records[w[0]:w[1]])
		if err != nil {
			return xerrors.Errorf("failed to encode chunk %d (rows %d-%d): %w", i, w[0], w[1]-1, err)
		}

		opts := []httpclient.RequestOption{httpclient.JSON()}
		switch c.KeyLocation {
		case KeyInHeader:
			opts = append(opts, httpclient.Header("Authorization", "Apikey "+key))
		default:
			opts = append(opts, httpclient.Query("pushkey", key))
		}

		resp, err := c.http.Post(ctx, url, body, opts...)
		if err != nil {
			return xerrors.Errorf("failed to %s chunk %d (rows %d-%d): %w", op, i, w[0], w[1]-1, err)
		}
		if err := httpclient.RaiseForStatus(resp); err != nil {
			return xerrors.Errorf("failed to %s chunk %d (rows %d-%d): %w", op, i, w[0], w[1]-1, err)
		}

		l.Debug().Int("chunk", i).Int("from", w[0]).Int("to", w[1]).Msg("chunk sent")
	}

	return nil
}

// Chunks splits n rows into contiguous [from, to) windows of at most size rows.
func Chunks(n, size int) [][2]int {
	var out [][2]int
	for from := 0; from < n; from += size {
		to := from + size
		if to > n {
			to = n
		}
		out = append(out, [2]int{from, to})
	}
	return out
}

// encode serializes records as a JSON array. Times are written as RFC 3339
// with offset and NaN or infinite floats as null.
func encode(records []Record) ([]byte, error) {
	clean := make([]Record, len(records))
	for i, r := range records {
		c := make(Record, len(r))
		for k, v := range r {
			c[k] = scalar(v)
		}
		clean[i] = c
	}
	return json.Marshal(clean)
}

func scalar(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case time.Time:
		return x.Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.RFC3339)
	}
	return v
}

// Dataset is the Transport of one dataset.
type Dataset struct {
	client    *Client
	pushURL   string
	deleteURL string
	key       string
}

// NewDataset binds c to a dataset's push and delete endpoints.
func NewDataset(c *Client, pushURL, deleteURL, key string) *Dataset {
	return &Dataset{client: c, pushURL: pushURL, deleteURL: deleteURL, key: key}
}

// Push upserts records.
func (d *Dataset) Push(ctx context.Context, records []Record) error {
	return d.client.Push(ctx, d.pushURL, d.key, records)
}

// Delete removes records.
func (d *Dataset) Delete(ctx context.Context, records []Record) error {
	if d.deleteURL == "" {
		return xerrors.New("no delete endpoint configured")
	}
	return d.client.Delete(ctx, d.deleteURL, d.key, records)
}

var _ Transport = (*Dataset)(nil)
