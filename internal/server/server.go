// Package server provides the reference HTTP API the sync client talks to.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/remote"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

// Page size limits for photos.atom.
const (
	DefaultPageSize = 20
	MaxPageSize     = remote.MaxPageSize
)

// Server serves the photo feeds from the origin photos table.
type Server struct {
	db     database.Store
	clock  clock.Clock
	router chi.Router
	log    *log.Helper
}

// New creates a new server.
func New(db database.Store, clk clock.Clock, logger log.Logger) *Server {
	s := &Server{
		db:    db,
		clock: clk,
		log:   log.NewHelper(log.With(logger, "module", "server")),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": s.db.DatabaseType()})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds/{feed}", func(r chi.Router) {
			r.Get("/photos.atom", s.handlePage)
			r.Get("/fresh-count", s.handleFreshCount)
			r.Post("/photos", s.handleUpload)
		})
		r.Delete("/photos/{name}", s.handleTakeDown)
	})

	s.router = r
}

// ServeHTTP lets the server be mounted or tested with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr.
func (s *Server) Start(addr string) error {
	s.log.Infof("Server starting on %s (%s)", addr, s.db.DatabaseType())
	return http.ListenAndServe(addr, s.router)
}

// --- API Handlers ---

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	feed, owner, ok := s.feedParams(w, r)
	if !ok {
		return
	}
	before := model.StartOfFeed
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "Invalid before cursor", http.StatusBadRequest)
			return
		}
		before = model.Cursor(n)
	}
	limit := DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxPageSize)
	}

	photos, err := s.db.ListPhotos(r.Context(), feed, owner, before, limit)
	if err != nil {
		s.log.WithContext(r.Context()).Errorw("msg", "list photos failed", "feed", string(feed), "error", err)
		http.Error(w, "Failed to list photos", http.StatusInternalServerError)
		return
	}

	atom, err := renderAtom(r, feed, photos, s.clock)
	if err != nil {
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write([]byte(atom))
}

func (s *Server) handleFreshCount(w http.ResponseWriter, r *http.Request) {
	feed, owner, ok := s.feedParams(w, r)
	if !ok {
		return
	}
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid after cursor", http.StatusBadRequest)
		return
	}
	n, err := s.db.CountPhotosAfter(r.Context(), feed, owner, model.Cursor(after))
	if err != nil {
		http.Error(w, "Failed to count photos", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, remote.FreshCountResponse{Count: n})
}

// UploadRequest is the body of POST /api/feeds/{feed}/photos.
type UploadRequest struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Owner string `json:"owner"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	feed, err := model.ParseFeedType(chi.URLParam(r, "feed"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	p := model.Photo{
		FeedType:   feed,
		Name:       req.Name,
		URL:        req.URL,
		UploadedOn: s.clock.Now().UTC(),
	}
	if p.Name == "" {
		p.Name = uuid.NewString() + ".jpg"
	}
	if req.Owner != "" {
		if p.OwnerID, err = uuid.Parse(req.Owner); err != nil {
			http.Error(w, "Invalid owner", http.StatusBadRequest)
			return
		}
	}
	if feed.RequiresOwner() && p.OwnerID == uuid.Nil {
		http.Error(w, "Owner required", http.StatusBadRequest)
		return
	}
	id, err := s.db.AddPhoto(r.Context(), &p)
	if err != nil {
		http.Error(w, "Failed to store photo", http.StatusConflict)
		return
	}
	s.log.WithContext(r.Context()).Infof("stored %s photo %d (%s)", feed, id, p.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          id,
		"name":        p.Name,
		"uploaded_on": model.CursorOf(p.UploadedOn),
	})
}

func (s *Server) handleTakeDown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	deleted, err := s.db.DeletePhotoByName(r.Context(), name)
	if err != nil {
		http.Error(w, "Delete failed", http.StatusInternalServerError)
		return
	}
	if deleted == 0 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted})
}

// --- Helpers ---

func (s *Server) feedParams(w http.ResponseWriter, r *http.Request) (model.FeedType, uuid.UUID, bool) {
	feed, err := model.ParseFeedType(chi.URLParam(r, "feed"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return "", uuid.Nil, false
	}
	owner := uuid.Nil
	if v := r.URL.Query().Get("owner"); v != "" {
		if owner, err = uuid.Parse(v); err != nil {
			http.Error(w, "Invalid owner", http.StatusBadRequest)
			return "", uuid.Nil, false
		}
	}
	if feed.RequiresOwner() && owner == uuid.Nil {
		http.Error(w, "Owner required", http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	return feed, owner, true
}

func renderAtom(r *http.Request, feed model.FeedType, photos []model.Photo, clk clock.Clock) (string, error) {
	self := fmt.Sprintf("%s://%s%s", scheme(r), r.Host, r.URL.Path)
	doc := &feeds.Feed{
		Title:   title(feed),
		Link:    &feeds.Link{Href: self, Rel: "self"},
		Id:      "urn:photofeed:" + string(feed),
		Created: clk.Now(),
	}
	for _, p := range photos {
		item := &feeds.Item{
			Id:      remote.EntryID(feed, p.ID, p.UploadedOn),
			Title:   p.Name,
			Link:    &feeds.Link{Href: p.URL},
			Created: p.UploadedOn,
			Updated: p.UploadedOn,
		}
		if p.OwnerID != uuid.Nil {
			item.Author = &feeds.Author{Name: p.OwnerID.String()}
		}
		doc.Items = append(doc.Items, item)
	}
	return doc.ToAtom()
}

func title(feed model.FeedType) string {
	name := string(feed)
	if name == "" {
		return "Photos"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " photos"
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
