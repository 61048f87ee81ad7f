package view

import (
	"net/url"
	"strconv"

	"github.com/sakif/facet/internal/model"
)

// Sidebar is the collection list beside a repository list.
type Sidebar struct {
	Mode        Mode
	Collections []model.DisplayCollection
	ActiveID    string
	// BasePath is the page the collection links point at, e.g. "/alice".
	BasePath string
}

func (s Sidebar) Caps() Capabilities { return s.Mode.Caps() }

// Href links to a collection on the sidebar's page.
func (s Sidebar) Href(id string) string {
	return s.BasePath + "?" + url.Values{"collection": {id}}.Encode()
}

// IsActive reports whether c is the selected collection.
func (s Sidebar) IsActive(c model.DisplayCollection) bool {
	return c.ID == s.ActiveID
}

// RepoList is a list of repository rows with optional pagination.
type RepoList struct {
	Mode         Mode
	CollectionID string
	Repos        []model.DisplayRepo
	EmptyMessage string
	Pager        *Pager
}

func (l RepoList) Caps() Capabilities { return l.Mode.Caps() }

// Pager renders Previous/Next controls.
type Pager struct {
	BasePath string
	// Query is kept on every link; "page" is replaced.
	Query   url.Values
	Page    int
	PerPage int
	Total   int
	HasPrev bool
	HasNext bool
}

func (p *Pager) PrevHref() string { return p.href(p.Page - 1) }
func (p *Pager) NextHref() string { return p.href(p.Page + 1) }

// Pages is the number of pages, at least 1.
func (p *Pager) Pages() int {
	if p.PerPage < 1 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p *Pager) href(page int) string {
	q := url.Values{}
	for k, v := range p.Query {
		q[k] = v
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	} else {
		q.Del("page")
	}
	if len(q) == 0 {
		return p.BasePath
	}
	return p.BasePath + "?" + q.Encode()
}
