// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"context"
	"encoding/json"
	"expvar"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conduitgrid/conduit/errors"
	"github.com/conduitgrid/conduit/logger"
)

// CurrentUsernameHeader carries the acting username on inbound
// requests. Real deployments put an authenticating reverse proxy in
// front; extracting identity is outside this layer, the header is just
// its boundary.
const CurrentUsernameHeader = "X-Conduit-Username"

type usernameKeyType struct{}

var usernameKey usernameKeyType

// WithCurrentUsername stashes the acting username on the context.
func WithCurrentUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// ContextUser is a CurrentUserer reading the username stashed on the
// request context by WithCurrentUsername. The zero value is usable.
type ContextUser struct{}

func (ContextUser) GetCurrentUsername(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler is the thin JSON adapter over the API. It shapes envelopes
// and maps coded errors to status codes; no business logic lives here.
type Handler struct {
	http.Handler

	api          *API
	logger       logger.Logger
	ln           net.Listener
	server       *http.Server
	closeTimeout time.Duration
}

// handlerOption is a functional option type for Handler.
type handlerOption func(h *Handler) error

func OptHandlerAPI(api *API) handlerOption {
	return func(h *Handler) error {
		h.api = api
		return nil
	}
}

func OptHandlerLogger(l logger.Logger) handlerOption {
	return func(h *Handler) error {
		h.logger = l
		return nil
	}
}

// OptHandlerListener sets the listener that will be used by the HTTP
// server. This option is mandatory.
func OptHandlerListener(ln net.Listener) handlerOption {
	return func(h *Handler) error {
		h.ln = ln
		return nil
	}
}

// OptHandlerCloseTimeout controls how long to wait for the http Server
// to shutdown cleanly before forcibly destroying it. Default is 30
// seconds.
func OptHandlerCloseTimeout(d time.Duration) handlerOption {
	return func(h *Handler) error {
		h.closeTimeout = d
		return nil
	}
}

// NewHandler returns a new instance of Handler with a default logger.
func NewHandler(opts ...handlerOption) (*Handler, error) {
	handler := &Handler{
		logger:       logger.NopLogger,
		closeTimeout: time.Second * 30,
	}
	for _, opt := range opts {
		if err := opt(handler); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	if handler.api == nil {
		return nil, errors.New(errors.ErrUncoded, "must pass OptHandlerAPI")
	}
	handler.Handler = newRouter(handler)
	if handler.ln != nil {
		handler.server = &http.Server{Handler: handler}
	}
	return handler, nil
}

// Serve serves requests on the configured listener until Close.
func (h *Handler) Serve() error {
	err := h.server.Serve(h.ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Errorf("HTTP handler terminated with error: %s\n", err)
		return errors.Wrap(err, "serve http")
	}
	return nil
}

// Close tries to cleanly shutdown the HTTP server, and failing that,
// after a timeout, calls Server.Close.
func (h *Handler) Close() error {
	if h.server == nil {
		return nil
	}
	deadlineCtx, cancel := context.WithDeadline(context.Background(), time.Now().Add(h.closeTimeout))
	defer cancel()
	if err := h.server.Shutdown(deadlineCtx); err != nil {
		return errors.Wrap(h.server.Close(), "forcibly closing http server")
	}
	return nil
}

func newRouter(handler *Handler) http.Handler {
	router := mux.NewRouter()
	router.Handle("/debug/vars", expvar.Handler()).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	router.HandleFunc("/articles", handler.handleGetArticles).Methods("GET").Name("GetArticles")
	router.HandleFunc("/articles", handler.handlePostArticle).Methods("POST").Name("PostArticle")
	router.HandleFunc("/articles/feed", handler.handleGetFeed).Methods("GET").Name("GetFeed")
	router.HandleFunc("/articles/{slug}", handler.handleGetArticle).Methods("GET").Name("GetArticle")
	router.HandleFunc("/articles/{slug}", handler.handlePutArticle).Methods("PUT").Name("PutArticle")
	router.HandleFunc("/articles/{slug}", handler.handleDeleteArticle).Methods("DELETE").Name("DeleteArticle")
	router.HandleFunc("/articles/{slug}/favorite", handler.handlePostFavorite).Methods("POST").Name("PostFavorite")
	router.HandleFunc("/articles/{slug}/favorite", handler.handleDeleteFavorite).Methods("DELETE").Name("DeleteFavorite")
	router.HandleFunc("/articles/{slug}/comments", handler.handleGetComments).Methods("GET").Name("GetComments")
	router.HandleFunc("/articles/{slug}/comments", handler.handlePostComment).Methods("POST").Name("PostComment")
	router.HandleFunc("/articles/{slug}/comments/{commentID}", handler.handleDeleteComment).Methods("DELETE").Name("DeleteComment")
	router.HandleFunc("/profiles/{username}", handler.handleGetProfile).Methods("GET").Name("GetProfile")
	router.HandleFunc("/profiles/{username}/follow", handler.handlePostFollow).Methods("POST").Name("PostFollow")
	router.HandleFunc("/profiles/{username}/follow", handler.handleDeleteFollow).Methods("DELETE").Name("DeleteFollow")
	router.HandleFunc("/tags", handler.handleGetTags).Methods("GET").Name("GetTags")
	router.HandleFunc("/users", handler.handlePostUser).Methods("POST").Name("PostUser")
	router.HandleFunc("/user", handler.handlePutUser).Methods("PUT").Name("PutUser")

	var h http.Handler = router
	h = handler.extractIdentity(h)
	return h
}

// extractIdentity copies the identity boundary header onto the request
// context for ContextUser.
func (h *Handler) extractIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username := r.Header.Get(CurrentUsernameHeader); username != "" {
			r = r.WithContext(WithCurrentUsername(r.Context(), username))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Errorf("writing response: %s", err)
	}
}

// writeError maps the coded error taxonomy onto status codes. Expected
// outcomes stay 4xx; only uncoded faults and transaction failures are
// 5xx.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrValidation):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Errorf("http: %s", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, errors.New(errors.ErrValidation, "malformed payload: "+err.Error()))
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter. Junk,
// negative and out-of-range values read as zero so paging falls back
// to the defaults instead of wrapping.
func queryInt(r *http.Request, name string) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type articlePayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	TagList     []string `json:"tagList"`
}

type articleUpdatePayload struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Body        *string  `json:"body"`
	TagList     []string `json:"tagList"`
}

type commentPayload struct {
	Body string `json:"body"`
}

type userPayload struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"passwordHash"`
	PasswordSalt []byte `json:"passwordSalt"`
	Bio          string `json:"bio"`
	Image        string `json:"image"`
}

type userUpdatePayload struct {
	Username     *string `json:"username"`
	Email        *string `json:"email"`
	PasswordHash []byte  `json:"passwordHash"`
	PasswordSalt []byte  `json:"passwordSalt"`
	Bio          *string `json:"bio"`
	Image        *string `json:"image"`
}

func (h *Handler) handleGetArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.api.ListArticles(r.Context(), ArticleFilter{
		Tag:         q.Get("tag"),
		Author:      q.Get("author"),
		FavoritedBy: q.Get("favorited"),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"articles":      views,
		"articlesCount": len(views),
	})
}

func (h *Handler) handlePostArticle(w http.ResponseWriter, r *http.Request) {
	var payload articlePayload
	if !h.decode(w, r, &payload) {
		return
	}
	view, err := h.api.CreateArticle(r.Context(), &CreateArticleRequest{
		Title:       payload.Title,
		Description: payload.Description,
		Body:        payload.Body,
		TagList:     payload.TagList,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"article": view})
}

func (h *Handler) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	views, err := h.api.FeedArticles(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"articles":      views,
		"articlesCount": len(views),
	})
}

func (h *Handler) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	view, err := h.api.GetArticle(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"article": view})
}

func (h *Handler) handlePutArticle(w http.ResponseWriter, r *http.Request) {
	var payload articleUpdatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	view, err := h.api.UpdateArticle(r.Context(), mux.Vars(r)["slug"], &UpdateArticleRequest{
		Title:       payload.Title,
		Description: payload.Description,
		Body:        payload.Body,
		TagList:     payload.TagList,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"article": view})
}

func (h *Handler) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := h.api.DeleteArticle(r.Context(), mux.Vars(r)["slug"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handlePostFavorite(w http.ResponseWriter, r *http.Request) {
	view, err := h.api.FavoriteArticle(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"article": view})
}

func (h *Handler) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	view, err := h.api.UnfavoriteArticle(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"article": view})
}

func (h *Handler) handleGetComments(w http.ResponseWriter, r *http.Request) {
	views, err := h.api.ListComments(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"comments": views})
}

func (h *Handler) handlePostComment(w http.ResponseWriter, r *http.Request) {
	var payload commentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	view, err := h.api.AddComment(r.Context(), mux.Vars(r)["slug"], payload.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"comment": view})
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := uuid.Parse(mux.Vars(r)["commentID"])
	if err != nil {
		h.writeError(w, errors.New(errors.ErrValidation, "malformed comment id"))
		return
	}
	if err := h.api.DeleteComment(r.Context(), mux.Vars(r)["slug"], commentID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.api.GetProfile(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}

func (h *Handler) handlePostFollow(w http.ResponseWriter, r *http.Request) {
	profile, err := h.api.FollowPerson(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}

func (h *Handler) handleDeleteFollow(w http.ResponseWriter, r *http.Request) {
	profile, err := h.api.UnfollowPerson(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}

func (h *Handler) handleGetTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.api.Tags(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (h *Handler) handlePostUser(w http.ResponseWriter, r *http.Request) {
	var payload userPayload
	if !h.decode(w, r, &payload) {
		return
	}
	person, err := h.api.RegisterPerson(r.Context(), &RegisterPersonRequest{
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: payload.PasswordHash,
		PasswordSalt: payload.PasswordSalt,
		Bio:          payload.Bio,
		Image:        payload.Image,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"user": person})
}

func (h *Handler) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var payload userUpdatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	person, err := h.api.UpdatePerson(r.Context(), &UpdatePersonRequest{
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: payload.PasswordHash,
		PasswordSalt: payload.PasswordSalt,
		Bio:          payload.Bio,
		Image:        payload.Image,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user": person})
}
