package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/anatolykoptev/go_vidmark/internal/embed"
	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/anatolykoptev/go_vidmark/internal/store"
	"github.com/anatolykoptev/go_vidmark/internal/toolutil"
)

type createVideoRequest struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	IsFavorite bool   `json:"isFavorite"`
	ListID     string `json:"listId"`
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

type listRequest struct {
	Name string `json:"name"`
}

type videosResponse struct {
	Videos []toolutil.VideoView `json:"videos"`
	Total  int                  `json:"total"`
}

type listsResponse struct {
	Lists []store.List `json:"lists"`
	Total int          `json:"total"`
}

type integrityResponse struct {
	library.Report
	Clean    bool `json:"clean"`
	Repaired bool `json:"repaired"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, embed.Resolve(raw, r.URL.Query().Get("title")))
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	get := s.svc.GetUserVideos
	if fav, _ := strconv.ParseBool(r.URL.Query().Get("favorites")); fav {
		get = s.svc.GetFavoriteVideos
	}
	videos, err := get(ctx, user)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	names, err := s.svc.ListNames(ctx, videos)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	views := toolutil.NewVideoViews(videos, names)
	writeJSON(w, http.StatusOK, videosResponse{Videos: views, Total: len(views)})
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	var req createVideoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ListID != "" {
		if _, err := s.svc.OwnedList(ctx, user, req.ListID); err != nil {
			writeLibraryError(w, r, err)
			return
		}
	}
	v, err := s.svc.AddVideo(ctx, library.NewVideo{
		Title:      req.Title,
		URL:        req.URL,
		UserID:     user,
		IsFavorite: req.IsFavorite,
	}, req.ListID)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toolutil.NewVideoView(*v))
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "videoID")

	var req favoriteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsFavorite == nil {
		writeError(w, http.StatusBadRequest, "isFavorite is required")
		return
	}
	if _, err := s.svc.OwnedVideo(ctx, userFrom(ctx), id); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	if err := s.svc.SetFavorite(ctx, id, *req.IsFavorite); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	v, err := s.svc.OwnedVideo(ctx, userFrom(ctx), id)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toolutil.NewVideoView(*v))
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "videoID")
	if _, err := s.svc.OwnedVideo(ctx, userFrom(ctx), id); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	if err := s.svc.RemoveVideo(ctx, id); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.svc.GetUserLists(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listsResponse{Lists: lists, Total: len(lists)})
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, err := s.svc.CreateList(r.Context(), userFrom(r.Context()), req.Name)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// ownedList loads the list named in the path, writing the error response
// when it is missing or foreign.
func (s *Server) ownedList(w http.ResponseWriter, r *http.Request) (*store.List, bool) {
	l, err := s.svc.OwnedList(r.Context(), userFrom(r.Context()), chi.URLParam(r, "listID"))
	if err != nil {
		writeLibraryError(w, r, err)
		return nil, false
	}
	return l, true
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleRenameList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	if err := s.svc.RenameList(r.Context(), l.ID, req.Name); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	l.Name = strings.TrimSpace(req.Name)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteList(r.Context(), l.ID); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVideosOfList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	videos, err := s.svc.GetListVideos(r.Context(), l.ID)
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	views := toolutil.NewVideoViews(videos, map[string]string{l.ID: l.Name})
	writeJSON(w, http.StatusOK, videosResponse{Videos: views, Total: len(views)})
}

func (s *Server) handleAddToList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	videoID := chi.URLParam(r, "videoID")
	if _, err := s.svc.OwnedVideo(ctx, userFrom(ctx), videoID); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	if err := s.svc.AddVideoToList(ctx, l.ID, videoID); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFromList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, ok := s.ownedList(w, r)
	if !ok {
		return
	}
	videoID := chi.URLParam(r, "videoID")
	if _, err := s.svc.UnlinkableVideo(ctx, userFrom(ctx), videoID); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	if err := s.svc.RemoveVideoFromList(ctx, l.ID, videoID); err != nil {
		writeLibraryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	check := s.svc.CheckIntegrity
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	if repair {
		check = s.svc.Repair
	}
	rep, err := check(ctx, userFrom(ctx))
	if err != nil {
		writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, integrityResponse{Report: rep, Clean: rep.Clean(), Repaired: repair && !rep.Clean()})
}
