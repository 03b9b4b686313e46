package portal

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
)

// Metadata is a dataset's metadata document: template -> field -> value.
type Metadata map[string]map[string]any

// Get returns the value of template.name.
func (m Metadata) Get(template, name string) (any, bool) {
	fields, ok := m[template]
	if !ok {
		return nil, false
	}
	v, ok := fields[name]
	return v, ok
}

// String returns template.name as a string, or "" when absent or not a string.
func (m Metadata) String(template, name string) string {
	v, _ := m.Get(template, name)
	s, _ := v.(string)
	return s
}

type metadataField struct {
	Value any `json:"value"`
}

// GetMetadata reads the metadata document of a dataset.
func (c *Client) GetMetadata(ctx context.Context, uid string) (Metadata, error) {
	resp, err := c.http.Get(ctx, c.datasetURL(uid, "metadata"), c.auth())
	if err != nil {
		return nil, xerrors.Errorf("failed to get metadata of %s: %w", uid, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, xerrors.Errorf("failed to get metadata of %s: %w", uid, err)
	}

	var raw map[string]map[string]metadataField
	if err := decode(resp, &raw); err != nil {
		return nil, xerrors.Errorf("failed to decode metadata of %s: %w", uid, err)
	}

	md := make(Metadata, len(raw))
	for tmpl, fields := range raw {
		md[tmpl] = make(map[string]any, len(fields))
		for name, f := range fields {
			md[tmpl][name] = f.Value
		}
	}
	return md, nil
}

// SetMetadata writes each field of patch, overriding any harvested value.
func (c *Client) SetMetadata(ctx context.Context, uid string, patch Metadata) error {
	for _, tmpl := range sortedKeys(patch) {
		for _, name := range sortedKeys(patch[tmpl]) {
			body := map[string]any{
				"value":                 patch[tmpl][name],
				"override_remote_value": true,
			}

			resp, err := c.http.Put(ctx, c.datasetURL(uid, "metadata", tmpl, name), body, c.auth(), httpclient.JSON())
			if err != nil {
				return xerrors.Errorf("failed to set %s.%s of %s: %w", tmpl, name, uid, err)
			}
			if err := checkStatus(resp); err != nil {
				return xerrors.Errorf("failed to set %s.%s of %s: %w", tmpl, name, uid, err)
			}

			log.Ctx(ctx).Debug().Str("uid", uid).Str("field", tmpl+"."+name).Msg("metadata updated")
		}
	}
	return nil
}

// ReplaceInMetadata replaces from with to in every string field of the
// dataset's metadata and returns the number of fields changed.
func (c *Client) ReplaceInMetadata(ctx context.Context, uid, from, to string) (int, error) {
	md, err := c.GetMetadata(ctx, uid)
	if err != nil {
		return 0, err
	}

	patch := Metadata{}
	n := 0
	for tmpl, fields := range md {
		for name, v := range fields {
			s, ok := v.(string)
			if !ok || !strings.Contains(s, from) {
				continue
			}
			if patch[tmpl] == nil {
				patch[tmpl] = map[string]any{}
			}
			patch[tmpl][name] = strings.ReplaceAll(s, from, to)
			n++
		}
	}

	if n == 0 {
		return 0, nil
	}
	if err := c.SetMetadata(ctx, uid, patch); err != nil {
		return 0, err
	}
	return n, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
