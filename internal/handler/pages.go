// Package handler contains the HTTP request handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path and query params, body)
// 2. Call the service layer with the session's user id as the actor
// 3. Write the response: a rendered page, an HTML fragment or JSON
//
// Handlers hold no business rules; they are the glue between HTTP and the
// services.
package handler

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/service"
	"github.com/sakif/facet/internal/view"
)

// homeProfilesLimit caps the "On Facet" list of the home page.
const homeProfilesLimit = 24

// UsernameLister lists every local profile's username.
type UsernameLister interface {
	ListUsernames(ctx context.Context) ([]string, error)
}

// PageHandler serves the server-rendered pages.
//
// Templates are parsed once at startup by view.Renderer and reused; each
// page renders into a buffer first so a template error becomes a clean 500.
type PageHandler struct {
	renderer     *view.Renderer
	profiles     *service.ProfileService
	collections  *service.CollectionService
	usernames    UsernameLister
	baseURL      string
	oauthEnabled bool
	logger       *slog.Logger
}

type PageHandlerConfig struct {
	// BaseURL is the public origin used for absolute sitemap links.
	BaseURL      string
	OAuthEnabled bool
}

func NewPageHandler(
	renderer *view.Renderer,
	profiles *service.ProfileService,
	collections *service.CollectionService,
	usernames UsernameLister,
	cfg PageHandlerConfig,
	logger *slog.Logger,
) *PageHandler {
	return &PageHandler{
		renderer:     renderer,
		profiles:     profiles,
		collections:  collections,
		usernames:    usernames,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		oauthEnabled: cfg.OAuthEnabled,
		logger:       logger,
	}
}

func navFor(r *http.Request) view.Nav {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return view.Nav{}
	}
	return view.Nav{SignedIn: true, Login: sess.Login}
}

// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	names, err := h.usernames.ListUsernames(r.Context())
	if err != nil {
		// the list is decoration; the page still works without it
		h.logger.Warn("listing profiles for home page", slog.String("error", err.Error()))
		names = nil
	}
	if len(names) > homeProfilesLimit {
		names = names[:homeProfilesLimit]
	}
	h.render(w, r, http.StatusOK, view.PageHome, view.HomePage{
		Base:     view.Base{Title: "Facet", Nav: navFor(r)},
		Profiles: names,
	})
}

// HandleSearch sends the home page's lookup form to the profile page.
//
// HTTP: GET /search?username=alice → 302 /alice
func (h *PageHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	username := strings.Trim(strings.TrimSpace(r.URL.Query().Get("username")), "@/")
	if username == "" || strings.ContainsAny(username, "/?#") {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/"+url.PathEscape(username), http.StatusFound)
}

// HTTP: GET /login?next=/dashboard
//
// Already signed in: straight to next.
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	next := SafeNext(r.URL.Query().Get("next"))
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, view.PageLogin, view.LoginPage{
		Base:         view.Base{Title: "Sign in · Facet", Nav: navFor(r)},
		Next:         next,
		OAuthEnabled: h.oauthEnabled,
	})
}

// HTTP: GET /auth/auth-code-error
func (h *PageHandler) HandleAuthError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageAuthError, view.ErrorPage{
		Base: view.Base{Title: "Sign-in failed · Facet", Nav: navFor(r)},
	})
}

// HandleProfile renders a public profile.
//
// HTTP: GET /{username}?collection=&page=
//
// Unknown on GitHub → 404 page. GitHub down or rate limited → 502 page
// asking to try again.
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	page, err := h.profiles.Resolve(r.Context(), service.ProfileRequest{
		Username:     chi.URLParam(r, "username"),
		CollectionID: r.URL.Query().Get("collection"),
		Page:         queryInt(r, "page", 1),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, view.PageProfile, view.NewProfileView(page, navFor(r)))
}

// HandleDashboard renders the owner's collections in edit mode.
//
// HTTP: GET /dashboard?collection=
// Auth: RequirePage (redirects to /login?next=/dashboard)
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := actor(r)
	cols, err := h.collections.List(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	var active *model.Collection
	requested := r.URL.Query().Get("collection")
	for i := range cols {
		if cols[i].ID == requested || (requested == "" && i == 0) {
			active = &cols[i]
			break
		}
	}
	if requested != "" && active == nil {
		h.renderError(w, r, apperror.NotFound("collection", requested))
		return
	}

	var repos *model.RepoPage
	if active != nil {
		repos, err = h.collections.ListRepos(r.Context(), userID, active.ID, 1, service.DashboardPageSize)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
	}
	h.render(w, r, http.StatusOK, view.PageDashboard, view.NewDashboardView(cols, active, repos, navFor(r)))
}

// HandlePick renders the add dialog's candidate list as an HTML fragment.
// Errors are JSON, read by dashboard.js.
//
// HTTP: GET /dashboard/pick?collection=&username=&page=&perPage=
// Auth: RequireAuth
//
// The user's own repositories page by 50, any other user's by 30.
func (h *PageHandler) HandlePick(w http.ResponseWriter, r *http.Request) {
	userID, login := actor(r)
	q := r.URL.Query()
	username := strings.TrimSpace(q.Get("username"))
	if username == "" {
		username = login
	}
	perPageDefault := service.SearchCandidatesPerPage
	if strings.EqualFold(username, login) {
		perPageDefault = service.DefaultCandidatesPerPage
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", perPageDefault)

	collectionID := q.Get("collection")
	candidates, err := h.collections.Candidates(r.Context(), userID, collectionID, username, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Fragment(w, view.FragmentPick, view.NewPickView(collectionID, username, candidates, page, perPage)); err != nil {
		h.logger.Error("failed to render fragment", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type sitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// HandleSitemap lists the home page and every local profile.
//
// HTTP: GET /sitemap.xml
func (h *PageHandler) HandleSitemap(w http.ResponseWriter, r *http.Request) {
	names, err := h.usernames.ListUsernames(r.Context())
	if err != nil {
		h.logger.Error("listing profiles for sitemap", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sm := sitemap{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  []sitemapURL{{Loc: h.baseURL + "/"}},
	}
	for _, name := range names {
		sm.URLs = append(sm.URLs, sitemapURL{Loc: h.baseURL + "/" + url.PathEscape(name)})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(sm); err != nil {
		h.logger.Error("failed to encode sitemap", slog.String("error", err.Error()))
	}
}

// HandleNotFound renders the 404 page for unmatched routes.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, apperror.NotFound("page", r.URL.Path))
}

// HandleHealth reports liveness.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// renderError shows the not-found page for 404s and the generic try-again
// page for everything else. Details are logged, never shown.
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	base := view.Base{Nav: navFor(r)}

	if status == http.StatusNotFound {
		base.Title = "Not found · Facet"
		h.render(w, r, status, view.PageNotFound, view.ErrorPage{Base: base, Status: status})
		return
	}

	h.logger.Error("page failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	msg := ""
	if errors.Is(err, apperror.ErrUpstream) {
		msg = "GitHub is not responding right now. Please try again in a moment."
	}
	base.Title = "Something went wrong · Facet"
	h.render(w, r, status, view.PageError, view.ErrorPage{Base: base, Status: status, Message: msg})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var buf strings.Builder
	if err := h.renderer.Page(&buf, page, data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write([]byte(buf.String()))
}
