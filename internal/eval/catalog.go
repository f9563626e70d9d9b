package eval

import (
	"context"
	"fmt"
	"net/http"
)

// Option is one selectable configuration choice.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog holds the configuration choices offered before a session starts.
type Catalog struct {
	Topics       []Option `json:"topics"`
	Companies    []Option `json:"companies"`
	Difficulties []Option `json:"difficulties"`
}

// Options fetches the three option lists from the backend. Callers must
// substitute BuiltinCatalog on error so configuration stays usable offline.
func (c *Client) Options(ctx context.Context) (Catalog, error) {
	var cat Catalog

	var topics struct {
		Topics []Option `json:"topics"`
	}
	if err := c.getJSON(ctx, "/topics", &topics); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	cat.Topics = topics.Topics

	var companies struct {
		Companies []Option `json:"companies"`
	}
	if err := c.getJSON(ctx, "/companies", &companies); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	cat.Companies = companies.Companies

	var difficulties struct {
		Difficulties []Option `json:"difficulties"`
	}
	if err := c.getJSON(ctx, "/difficulties", &difficulties); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	cat.Difficulties = difficulties.Difficulties

	if len(cat.Topics) == 0 || len(cat.Difficulties) == 0 {
		return Catalog{}, fmt.Errorf("%w: backend returned empty lists", ErrCatalog)
	}
	return cat, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// BuiltinCatalog is the fixed fallback used when the backend option lists are
// unreachable. Configuration must never block on the network.
func BuiltinCatalog() Catalog {
	return Catalog{
		Topics: []Option{
			{ID: "general", Name: "General"},
			{ID: "dsa", Name: "Data Structures & Algorithms"},
			{ID: "system_design", Name: "System Design"},
			{ID: "behavioral", Name: "Behavioral"},
			{ID: "frontend", Name: "Frontend Development"},
			{ID: "backend", Name: "Backend Development"},
		},
		Companies: []Option{
			{ID: "default", Name: "Standard"},
			{ID: "google", Name: "Google"},
			{ID: "amazon", Name: "Amazon"},
			{ID: "meta", Name: "Meta"},
			{ID: "startup", Name: "Startup"},
		},
		Difficulties: []Option{
			{ID: "easy", Name: "Easy"},
			{ID: "medium", Name: "Medium"},
			{ID: "hard", Name: "Hard"},
		},
	}
}
