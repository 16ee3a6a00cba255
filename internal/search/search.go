package search

import (
	"context"
	"strings"
)

// Kind identifies the kind of entity in a search result.
type Kind string

const (
	KindFolder Kind = "folder"
	KindSpace  Kind = "space"
	KindTopic  Kind = "topic"
)

// ParseKind accepts a result kind filter; an empty value matches all kinds.
func ParseKind(value string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case "", KindFolder, KindSpace, KindTopic:
		return k, true
	}
	return "", false
}

// Result is a single search hit returned to the caller.
type Result struct {
	Kind     Kind    `json:"kind"`
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	FolderID *string `json:"folderId"`
}

// Query describes a search request. OwnerID is always set by the caller;
// results never cross owners.
type Query struct {
	OwnerID string
	Text    string
	Kind    Kind // empty = all kinds
	Limit   int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	default:
		return q.Limit
	}
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Engine is a searcher that also maintains its own index.
type Engine interface {
	Searcher
	Index(records []Record) error
	Delete(kind Kind, ids []string) error
}

// Record is the data we index for a folder, space or topic.
type Record struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	FolderID string `json:"folderId"`
}

// recordKey is unique across kinds so every record can live in one index.
func recordKey(kind Kind, id string) string {
	return string(kind) + "-" + id
}

func (r Record) result(snippet string) Result {
	res := Result{Kind: r.Kind, ID: r.ID, Title: r.Title, Snippet: snippet}
	if r.FolderID != "" {
		id := r.FolderID
		res.FolderID = &id
	}
	return res
}
