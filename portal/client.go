// Package portal is a client of the open data portal's management (automation)
// and explore APIs.
package portal

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
)

const (
	// DefaultBaseURL is the management API root.
	DefaultBaseURL = "https://data.bs.ch/api/automation/v1.0"
	// DefaultExploreURL is the explore API root.
	DefaultExploreURL = "https://data.bs.ch/api/explore/v2.1"

	pageSize = 100
)

// Client talks to the portal with an API key.
type Client struct {
	http *httpclient.Client

	apiKey     string
	baseURL    string
	exploreURL string
}

// Option configures a Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithBaseURL overrides the management API root.
func WithBaseURL(u string) Option {
	return optionFunc(func(c *Client) { c.baseURL = u })
}

// WithExploreURL overrides the explore API root.
func WithExploreURL(u string) Option {
	return optionFunc(func(c *Client) { c.exploreURL = u })
}

// New builds a Client authenticating with apiKey.
func New(hc *httpclient.Client, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:       hc,
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		exploreURL: DefaultExploreURL,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

func (c *Client) auth() httpclient.RequestOption {
	return httpclient.Header("Authorization", "apikey "+c.apiKey)
}

func (c *Client) datasetURL(uid string, sub ...string) string {
	u := fmt.Sprintf("%s/datasets/%s/", c.baseURL, url.PathEscape(uid))
	for _, s := range sub {
		u += url.PathEscape(s) + "/"
	}
	return u
}

// Dataset is a catalog entry of the management API.
type Dataset struct {
	UID          string `json:"uid"`
	DatasetID    string `json:"dataset_id"`
	IsRestricted bool   `json:"is_restricted"`
	Status       string `json:"status,omitempty"`
}

type datasetPage struct {
	TotalCount int       `json:"total_count"`
	Results    []Dataset `json:"results"`
}

// ResolveUID returns the UID of the dataset with the given dataset ID.
func (c *Client) ResolveUID(ctx context.Context, datasetID string) (string, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/datasets/",
		c.auth(),
		httpclient.Query("where", fmt.Sprintf("dataset_id=%q", datasetID)),
	)
	if err != nil {
		return "", xerrors.Errorf("failed to query dataset %s: %w", datasetID, err)
	}
	if err := checkStatus(resp); err != nil {
		return "", xerrors.Errorf("failed to query dataset %s: %w", datasetID, err)
	}

	var page datasetPage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return "", xerrors.Errorf("failed to decode dataset query: %w", err)
	}
	if len(page.Results) == 0 {
		return "", xerrors.Errorf("dataset %s: %w", datasetID, ErrDatasetNotFound)
	}

	return page.Results[0].UID, nil
}

// Datasets pages through the whole catalog.
func (c *Client) Datasets(ctx context.Context) ([]Dataset, error) {
	var all []Dataset

	for offset := 0; ; offset += pageSize {
		resp, err := c.http.Get(ctx, c.baseURL+"/datasets/",
			c.auth(),
			httpclient.Query("limit", fmt.Sprint(pageSize)),
			httpclient.Query("offset", fmt.Sprint(offset)),
		)
		if err != nil {
			return nil, xerrors.Errorf("failed to list datasets: %w", err)
		}
		if err := checkStatus(resp); err != nil {
			return nil, xerrors.Errorf("failed to list datasets: %w", err)
		}

		var page datasetPage
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, xerrors.Errorf("failed to decode dataset list: %w", err)
		}
		all = append(all, page.Results...)

		if len(page.Results) < pageSize || len(all) >= page.TotalCount {
			return all, nil
		}
	}
}

// Publish queues the dataset for processing. A dataset that is already
// queued or processing counts as published.
func (c *Client) Publish(ctx context.Context, uid string) error {
	resp, err := c.http.Put(ctx, c.datasetURL(uid, "publish"), nil, c.auth())
	if err != nil {
		return xerrors.Errorf("failed to publish %s: %w", uid, err)
	}

	if err := checkStatus(resp); err != nil {
		var apiErr *APIError
		if xerrors.As(err, &apiErr) && apiErr.StatusCode == 400 && apiErr.ErrorKey == errorKeyAlreadyQueued {
			log.Ctx(ctx).Info().Str("uid", uid).Msg("dataset is already queued for publishing")
			return nil
		}
		return xerrors.Errorf("failed to publish %s: %w", uid, err)
	}

	log.Ctx(ctx).Info().Str("uid", uid).Msg("dataset published")
	return nil
}

// GetDataset fetches a catalog entry by UID.
func (c *Client) GetDataset(ctx context.Context, uid string) (*Dataset, error) {
	resp, err := c.http.Get(ctx, c.datasetURL(uid), c.auth())
	if err != nil {
		return nil, xerrors.Errorf("failed to get dataset %s: %w", uid, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, xerrors.Errorf("failed to get dataset %s: %w", uid, err)
	}

	var ds Dataset
	if err := json.Unmarshal(resp.Body(), &ds); err != nil {
		return nil, xerrors.Errorf("failed to decode dataset %s: %w", uid, err)
	}
	return &ds, nil
}

// SetGeneralAccessPolicy makes the dataset public or restricted and reports
// whether the policy changed.
func (c *Client) SetGeneralAccessPolicy(ctx context.Context, uid string, public bool) (bool, error) {
	ds, err := c.GetDataset(ctx, uid)
	if err != nil {
		return false, err
	}
	if ds.IsRestricted == !public {
		return false, nil
	}

	body := map[string]bool{"is_restricted": !public}
	resp, err := c.http.Put(ctx, c.datasetURL(uid), body, c.auth(), httpclient.JSON())
	if err != nil {
		return false, xerrors.Errorf("failed to set access policy of %s: %w", uid, err)
	}
	if err := checkStatus(resp); err != nil {
		return false, xerrors.Errorf("failed to set access policy of %s: %w", uid, err)
	}

	log.Ctx(ctx).Info().Str("uid", uid).Bool("public", public).Msg("access policy changed")
	return true, nil
}

func decode(resp *resty.Response, v any) error {
	return json.Unmarshal(resp.Body(), v)
}
