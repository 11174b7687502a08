package elasticsearch

import (
	"context"
	"slices"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// UpdateAliases applies every action in one atomic _aliases request.
func (c *Client) UpdateAliases(ctx context.Context, actions []domain.AliasAction) error {
	if len(actions) == 0 {
		return nil
	}

	payload := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		payload = append(payload, map[string]any{
			string(a.Type): map[string]any{"index": a.Index, "alias": a.Alias},
		})
	}

	reader, err := jsonBody(map[string]any{"actions": payload})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.UpdateAliases(reader, c.es.Indices.UpdateAliases.WithContext(ctx))
	return decode("update aliases", res, err, nil)
}

// GetAliasIndices returns the sorted names of the indices an alias points at.
// A missing alias yields an empty slice.
func (c *Client) GetAliasIndices(ctx context.Context, alias string) ([]string, error) {
	var body map[string]any
	res, err := c.es.Indices.GetAlias(c.es.Indices.GetAlias.WithName(alias), c.es.Indices.GetAlias.WithContext(ctx))
	if err = decode("get alias "+alias, res, err, &body); err != nil {
		if IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	indices := make([]string, 0, len(body))
	for name := range body {
		indices = append(indices, name)
	}
	slices.Sort(indices)
	return indices, nil
}

// IndexAliases returns the sorted names of the aliases pointing at index. A
// missing index yields an empty slice.
func (c *Client) IndexAliases(ctx context.Context, index string) ([]string, error) {
	var body map[string]struct {
		Aliases map[string]any `json:"aliases"`
	}
	res, err := c.es.Indices.GetAlias(c.es.Indices.GetAlias.WithIndex(index), c.es.Indices.GetAlias.WithContext(ctx))
	if err = decode("get aliases of "+index, res, err, &body); err != nil {
		if IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	aliases := make([]string, 0)
	for _, entry := range body {
		for name := range entry.Aliases {
			aliases = append(aliases, name)
		}
	}
	slices.Sort(aliases)
	return slices.Compact(aliases), nil
}
