package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
)

// Field describes a column of a published dataset.
type Field struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Type        string      `json:"type"`
	Annotations Annotations `json:"annotations"`
}

// Annotations are the field annotations the platform relies on.
type Annotations struct {
	// TimeseriePrecision is "year", "month" or "day" on date fields.
	TimeseriePrecision string `json:"timeserie_precision,omitempty"`
}

// Fields returns the field catalog of a published dataset.
func (c *Client) Fields(ctx context.Context, datasetID string) ([]Field, error) {
	u := fmt.Sprintf("%s/catalog/datasets/%s", c.exploreURL, url.PathEscape(datasetID))

	resp, err := c.http.Get(ctx, u, c.auth())
	if err != nil {
		return nil, xerrors.Errorf("failed to get fields of %s: %w", datasetID, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, xerrors.Errorf("failed to get fields of %s: %w", datasetID, err)
	}

	var body struct {
		Fields []Field `json:"fields"`
	}
	if err := decode(resp, &body); err != nil {
		return nil, xerrors.Errorf("failed to decode fields of %s: %w", datasetID, err)
	}
	return body.Fields, nil
}

// FirstValue returns the smallest (or, if desc, largest) non-null value of
// field. ok is false when the dataset has no such value.
func (c *Client) FirstValue(ctx context.Context, datasetID, field string, desc bool) (value string, ok bool, err error) {
	u := fmt.Sprintf("%s/catalog/datasets/%s/records", c.exploreURL, url.PathEscape(datasetID))

	order := field
	if desc {
		order += " desc"
	}

	resp, err := c.http.Get(ctx, u,
		c.auth(),
		httpclient.Query("select", field),
		httpclient.Query("where", field+" is not null"),
		httpclient.Query("order_by", order),
		httpclient.Query("limit", "1"),
	)
	if err != nil {
		return "", false, xerrors.Errorf("failed to query %s.%s: %w", datasetID, field, err)
	}
	if err := checkStatus(resp); err != nil {
		return "", false, xerrors.Errorf("failed to query %s.%s: %w", datasetID, field, err)
	}

	var body struct {
		Results []map[string]any `json:"results"`
	}
	if err := decode(resp, &body); err != nil {
		return "", false, xerrors.Errorf("failed to decode %s.%s: %w", datasetID, field, err)
	}
	if len(body.Results) == 0 {
		return "", false, nil
	}

	v, found := body.Results[0][field]
	if !found || v == nil {
		return "", false, nil
	}
	switch x := v.(type) {
	case string:
		return x, true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	default:
		return fmt.Sprint(x), true, nil
	}
}
