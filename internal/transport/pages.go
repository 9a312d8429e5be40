package transport

import (
	"context"
	"encoding/json"
)

// Page is one page of a paginated listing: the raw JSON:API resources plus
// the pointer to the next page, absent on the last one.
type Page struct {
	Data  []json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Meta struct {
		Total   int `json:"total"`
		PerPage int `json:"per_page"`
	} `json:"meta"`
}

// Pages lazily follows a paginated listing one page per Next call. It never
// materializes the whole listing; restarting means calling Paginate again.
type Pages struct {
	client *Client
	next   string
	done   bool
}

// Paginate prepares a lazy page sequence starting at url.
func (c *Client) Paginate(url string) *Pages {
	return &Pages{client: c, next: url}
}

// Next fetches the next page, or returns (nil, nil) once the sequence is
// exhausted.
func (p *Pages) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, nil
	}

	var page Page
	if err := p.client.GetJSON(ctx, p.next, &page); err != nil {
		p.done = true
		return nil, err
	}

	if page.Links.Next == "" {
		p.done = true
	} else {
		p.next = page.Links.Next
	}
	return &page, nil
}
