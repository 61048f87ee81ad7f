package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/service"
)

// CollectionHandler is the dashboard's JSON API. Every route sits behind
// auth.RequireAuth; the session's user id is the actor of every call.
type CollectionHandler struct {
	svc    *service.CollectionService
	logger *slog.Logger
}

func NewCollectionHandler(svc *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{svc: svc, logger: logger}
}

// Routes mounts the API under the caller's router:
//
//	GET    /collections                      list
//	POST   /collections                      create
//	PUT    /collections/order                reorder collections
//	PATCH  /collections/{id}                 rename
//	DELETE /collections/{id}                 delete
//	GET    /collections/{id}/repos           page of memberships
//	POST   /collections/{id}/repos           add repository
//	PUT    /collections/{id}/repos/order     reorder memberships
//	GET    /collections/{id}/candidates      add-dialog candidates
//	DELETE /repos/{id}                       remove membership
//	PATCH  /repos/{id}/note                  edit note
func (h *CollectionHandler) Routes(r chi.Router) {
	r.Get("/collections", h.HandleList)
	r.Post("/collections", h.HandleCreate)
	r.Put("/collections/order", h.HandleReorder)
	r.Patch("/collections/{id}", h.HandleUpdate)
	r.Delete("/collections/{id}", h.HandleDelete)
	r.Get("/collections/{id}/repos", h.HandleListRepos)
	r.Post("/collections/{id}/repos", h.HandleAddRepo)
	r.Put("/collections/{id}/repos/order", h.HandleReorderRepos)
	r.Get("/collections/{id}/candidates", h.HandleCandidates)
	r.Delete("/repos/{id}", h.HandleRemoveRepo)
	r.Patch("/repos/{id}/note", h.HandleUpdateNote)
}

type collectionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type orderRequest struct {
	IDs []string `json:"ids"`
}

type noteRequest struct {
	Note string `json:"note"`
}

func actor(r *http.Request) (string, string) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return "", ""
	}
	return sess.UserID, sess.Login
}

// HTTP: GET /api/collections
func (h *CollectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := actor(r)
	cols, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// HTTP: POST /api/collections  {"title": "...", "description": "..."}
func (h *CollectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	c, err := h.svc.Create(r.Context(), userID, deref(req.Title), deref(req.Description))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: PATCH /api/collections/{id}  {"title"?: "...", "description"?: "..."}
func (h *CollectionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	c, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), model.CollectionUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: DELETE /api/collections/{id}
func (h *CollectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := actor(r)
	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: PUT /api/collections/order  {"ids": ["c3", "c1", "c2"]}
//
// Success returns the stored order. A failure carries it in "current".
func (h *CollectionHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	cols, err := h.svc.ReorderCollections(r.Context(), userID, req.IDs)
	if err != nil {
		var re *service.ReorderError[model.Collection]
		if errors.As(err, &re) {
			writeReorderError(w, err, re.Current)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// HTTP: GET /api/collections/{id}/repos?page=&perPage=
func (h *CollectionHandler) HandleListRepos(w http.ResponseWriter, r *http.Request) {
	userID, _ := actor(r)
	page, err := h.svc.ListRepos(r.Context(), userID, chi.URLParam(r, "id"),
		queryInt(r, "page", 1), queryInt(r, "perPage", service.DashboardPageSize))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: POST /api/collections/{id}/repos  {"fullName": "owner/name", "description": "..."}
//
// 409 {"error": "duplicate"} when the repository is already there.
func (h *CollectionHandler) HandleAddRepo(w http.ResponseWriter, r *http.Request) {
	var req service.AddRepoInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	repo, err := h.svc.AddRepo(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// HTTP: PUT /api/collections/{id}/repos/order  {"ids": [...]}
func (h *CollectionHandler) HandleReorderRepos(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	repos, err := h.svc.ReorderRepos(r.Context(), userID, chi.URLParam(r, "id"), req.IDs)
	if err != nil {
		var re *service.ReorderError[model.CollectionRepo]
		if errors.As(err, &re) {
			writeReorderError(w, err, re.Current)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HTTP: GET /api/collections/{id}/candidates?username=&page=&perPage=
//
// username defaults to the signed-in user.
func (h *CollectionHandler) HandleCandidates(w http.ResponseWriter, r *http.Request) {
	userID, login := actor(r)
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		username = login
	}
	repos, err := h.svc.Candidates(r.Context(), userID, chi.URLParam(r, "id"), username,
		queryInt(r, "page", 1), queryInt(r, "perPage", service.DefaultCandidatesPerPage))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HTTP: DELETE /api/repos/{id}
func (h *CollectionHandler) HandleRemoveRepo(w http.ResponseWriter, r *http.Request) {
	userID, _ := actor(r)
	if err := h.svc.RemoveRepo(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: PATCH /api/repos/{id}/note  {"note": "..."}
func (h *CollectionHandler) HandleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := actor(r)
	repo, err := h.svc.UpdateNote(r.Context(), userID, chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func writeReorderError[T any](w http.ResponseWriter, err error, current []T) {
	status, resp := errorResponse(err)
	if current != nil {
		resp.Current = current
	}
	writeJSON(w, status, resp)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
