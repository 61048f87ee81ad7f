package view

import (
	"net/url"
	"strconv"

	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/service"
)

// Nav is the signed-in state shown in the header of every page.
type Nav struct {
	SignedIn bool
	Login    string
}

// Base is embedded by every page's data.
type Base struct {
	Title string
	Nav   Nav
}

type HomePage struct {
	Base
	Profiles []string
}

type LoginPage struct {
	Base
	Next         string
	OAuthEnabled bool
}

type ErrorPage struct {
	Base
	Status  int
	Message string
}

// ProfileView is the public /{username} page.
type ProfileView struct {
	Base
	Profile *service.ProfilePage
	Sidebar Sidebar
	List    RepoList
}

// NewProfileView lays out a resolved profile: a read-only sidebar and the
// active collection's page of repositories.
func NewProfileView(p *service.ProfilePage, nav Nav) ProfileView {
	base := "/" + p.Username
	query := url.Values{}
	if p.ActiveID != "" {
		query.Set("collection", p.ActiveID)
	}

	empty := "No repositories in this collection yet."
	if p.ActiveID == model.AllCollectionID {
		empty = "No public repositories to show."
	}

	return ProfileView{
		Base:    Base{Title: p.DisplayName + " · Facet", Nav: nav},
		Profile: p,
		Sidebar: Sidebar{
			Mode:        ModeView,
			Collections: p.Collections,
			ActiveID:    p.ActiveID,
			BasePath:    base,
		},
		List: RepoList{
			Mode:         ModeView,
			CollectionID: p.ActiveID,
			Repos:        p.Repos,
			EmptyMessage: empty,
			Pager: &Pager{
				BasePath: base,
				Query:    query,
				Page:     p.Page,
				PerPage:  p.PerPage,
				Total:    p.Total,
				HasPrev:  p.HasPrev,
				HasNext:  p.HasNext,
			},
		},
	}
}

// DashboardView is the owner's /dashboard page.
type DashboardView struct {
	Base
	Active  *model.Collection
	Sidebar Sidebar
	List    RepoList
	Total   int
}

// NewDashboardView lays out the owner's collections in edit mode. active is
// nil when the owner has no collections yet.
func NewDashboardView(cols []model.Collection, active *model.Collection, repos *model.RepoPage, nav Nav) DashboardView {
	display := make([]model.DisplayCollection, 0, len(cols))
	for _, c := range cols {
		display = append(display, model.DisplayCollection{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Count:       c.Count,
		})
	}

	v := DashboardView{
		Base:    Base{Title: "Dashboard · Facet", Nav: nav},
		Active:  active,
		Sidebar: Sidebar{Mode: ModeEdit, Collections: display, BasePath: "/dashboard"},
		List: RepoList{
			Mode:         ModeEdit,
			EmptyMessage: "This collection is empty. Add a repository to get started.",
		},
	}
	if active != nil {
		v.Sidebar.ActiveID = active.ID
		v.List.CollectionID = active.ID
	}
	if repos != nil {
		v.Total = repos.Total
		v.List.Repos = make([]model.DisplayRepo, 0, len(repos.Repos))
		for _, r := range repos.Repos {
			v.List.Repos = append(v.List.Repos, model.DisplayRepoFromMembership(r))
		}
	}
	return v
}

// PickView is the add-repository dialog's list, rendered as a fragment.
type PickView struct {
	Username string
	List     RepoList
}

// NewPickView lays out candidates in pick mode. The pager keeps paging the
// same GitHub user within the dialog.
func NewPickView(collectionID, username string, candidates []model.DisplayRepo, page, perPage int) PickView {
	return PickView{
		Username: username,
		List: RepoList{
			Mode:         ModePick,
			CollectionID: collectionID,
			Repos:        candidates,
			EmptyMessage: "No repositories found for " + username + ".",
			Pager: &Pager{
				BasePath: "/dashboard/pick",
				Query: url.Values{
					"collection": {collectionID},
					"username":   {username},
					"perPage":    {strconv.Itoa(perPage)},
				},
				Page:    page,
				PerPage: perPage,
				HasPrev: page > 1,
				// GitHub gives no total; a full page means there may be more
				HasNext: len(candidates) == perPage,
			},
		},
	}
}
