package github

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// Resource is one repository endpoint loaded into its own table
type Resource struct {
	Name   string
	Path   string
	Query  url.Values
	Accept string
	// Field holds the array of a wrapped response, such as workflow_runs.
	Field string
}

func perPage(extra ...string) url.Values {
	q := url.Values{"per_page": {"100"}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

// Resources returns the endpoints fetched for a repository.
func Resources(fullName string) []Resource {
	base := "/repos/" + fullName
	return []Resource{
		{Name: "repositories", Path: base},
		{Name: "issues", Path: base + "/issues", Query: perPage("state", "all")},
		{Name: "pull_requests", Path: base + "/pulls", Query: perPage("state", "all")},
		{Name: "commits", Path: base + "/commits", Query: perPage()},
		{Name: "stargazers", Path: base + "/stargazers", Query: perPage(), Accept: "application/vnd.github.v3.star+json"},
		{Name: "releases", Path: base + "/releases", Query: perPage()},
		{Name: "workflow_runs", Path: base + "/actions/runs", Query: perPage(), Field: "workflow_runs"},
	}
}

// Fetch returns every record of res, following Link pagination for at most
// maxPages pages. A missing resource yields ErrNotFound.
func (c *Client) Fetch(ctx context.Context, res Resource, maxPages int) ([]models.Record, error) {
	next := res.Path
	if len(res.Query) > 0 {
		next += "?" + res.Query.Encode()
	}

	var records []models.Record
	for n := 0; next != ""; n++ {
		if maxPages > 0 && n >= maxPages {
			c.logger.Warn("reached page limit", zap.String("resource", res.Name), zap.Int("pages", maxPages))
			break
		}
		p, err := c.get(ctx, next, res.Accept)
		if err != nil {
			return nil, err
		}

		items, single, err := decodePage(p.body, res.Field)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", res.Name)
		}
		if single != nil {
			records = append(records, single)
			break
		}
		if len(items) == 0 {
			break
		}
		records = append(records, items...)
		next = p.next
	}
	return records, nil
}

// decodePage decodes an array page, an object wrapping an array in field, or
// a single object.
func decodePage(body []byte, field string) ([]models.Record, models.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []models.Record
		if err := unmarshal(body, &items); err != nil {
			return nil, nil, err
		}
		return items, nil, nil
	}

	var obj models.Record
	if err := unmarshal(body, &obj); err != nil {
		return nil, nil, err
	}
	if field == "" {
		return nil, obj, nil
	}
	raw, ok := obj[field].([]interface{})
	if !ok {
		return nil, nil, errors.Errorf("response has no %s array", field)
	}
	items := make([]models.Record, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items, nil, nil
}

func unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
