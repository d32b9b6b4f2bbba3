// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduitgrid/conduit/errors"
	"github.com/conduitgrid/conduit/gridkey"
	"github.com/conduitgrid/conduit/logger"
)

// CurrentUserer is the identity collaborator. The username of the
// acting person is the only identity fact this layer consumes; it
// resolves the person's identifier itself via the query layer. An empty
// username is an anonymous caller.
type CurrentUserer interface {
	GetCurrentUsername(ctx context.Context) string
}

// StaticUser is a CurrentUserer that always acts as one username.
// Useful for tests and single-user tooling.
type StaticUser string

func (u StaticUser) GetCurrentUsername(ctx context.Context) string { return string(u) }

// API implements the domain operations against the grid. Each
// operation runs on its own Scope: commands validate first (no writes
// on invalid input), then every cache write between Begin and Commit
// becomes visible to other transactions all-or-nothing. Cancellation
// between Begin and Commit rolls back.
type API struct {
	grid    Grid
	current CurrentUserer
	slugger SlugFunc
	logger  logger.Logger
	stats   StatsClient

	// overridable for deterministic tests
	now   func() time.Time
	newID func() uuid.UUID
}

type apiOption func(*API) error

func OptAPILogger(l logger.Logger) apiOption {
	return func(a *API) error {
		a.logger = l
		return nil
	}
}

func OptAPIStatsClient(s StatsClient) apiOption {
	return func(a *API) error {
		a.stats = s
		return nil
	}
}

func OptAPISlugFunc(f SlugFunc) apiOption {
	return func(a *API) error {
		a.slugger = f
		return nil
	}
}

func OptAPIClock(now func() time.Time) apiOption {
	return func(a *API) error {
		a.now = now
		return nil
	}
}

// NewAPI returns a new API instance.
func NewAPI(grid Grid, current CurrentUserer, opts ...apiOption) (*API, error) {
	api := &API{
		grid:    grid,
		current: current,
		slugger: GenerateSlug,
		logger:  logger.NopLogger,
		stats:   NopStatsClient,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
	for _, opt := range opts {
		if err := opt(api); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	return api, nil
}

// viewer resolves the acting person for a read. Anonymous and unknown
// usernames both read as nil viewer.
func (api *API) viewer(ctx context.Context, tx Tx) (*Person, error) {
	username := api.current.GetCurrentUsername(ctx)
	if username == "" {
		return nil, nil
	}
	p, err := FindPersonByUsername(tx, username)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// actor resolves the acting person for a write. The caller is supposed
// to be authenticated, so an unresolvable username is an invariant
// violation surfaced as NotFound.
func (api *API) actor(ctx context.Context, tx Tx) (*Person, error) {
	username := api.current.GetCurrentUsername(ctx)
	if username == "" {
		return nil, errors.New(errors.ErrNotFound, "no current user")
	}
	p, err := FindPersonByUsername(tx, username)
	return p, errors.Wrap(err, "resolving current user")
}

// readTx opens a read-only transaction. The caller must Rollback it.
func (api *API) readTx() (Tx, error) {
	tx, err := api.grid.Begin(!writable)
	return tx, errors.Wrap(err, "beginning read tx")
}

// CreateArticleRequest is the already-validated command shape for
// CreateArticle; validate only re-checks the non-empty invariants the
// external validator owns, so no write can ever precede a validation
// failure.
type CreateArticleRequest struct {
	Title       string
	Description string
	Body        string
	TagList     []string
}

func (r *CreateArticleRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return errors.New(errors.ErrValidation, "title is required")
	case strings.TrimSpace(r.Description) == "":
		return errors.New(errors.ErrValidation, "description is required")
	case strings.TrimSpace(r.Body) == "":
		return errors.New(errors.ErrValidation, "body is required")
	}
	for _, tag := range r.TagList {
		if tag == "" {
			return errors.New(errors.ErrValidation, "empty tag")
		}
	}
	return nil
}

// CreateArticle writes the article row, the idempotent tag existence
// rows, and the article-tag relation rows in one scope, and returns the
// materialized view.
func (api *API) CreateArticle(ctx context.Context, req *CreateArticleRequest) (_ *ArticleView, err0 error) {
	start := api.now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	author, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}

	slug := api.slugger(req.Title)
	if err := ensureSlugFree(tx, slug, uuid.Nil); err != nil {
		return nil, err
	}

	now := api.now()
	article := &Article{
		ID:          api.newID(),
		Slug:        slug,
		Title:       req.Title,
		Description: req.Description,
		Body:        req.Body,
		AuthorID:    author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := putArticle(tx, article); err != nil {
		return nil, err
	}
	if err := putArticleTags(tx, article.ID, req.TagList); err != nil {
		return nil, err
	}

	// Cancellation after Begin must never leave partial writes
	// committed.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "create article canceled")
	}

	view, err := BuildArticleView(tx, article, author)
	if err != nil {
		return nil, err
	}
	api.stats.Count("createArticle", 1)
	api.stats.Timing("createArticle", api.now().Sub(start))
	api.logger.Debugf("created article %s (%s)", article.Slug, article.ID)
	return view, nil
}

// UpdateArticleRequest carries the mutable article fields. Nil pointers
// keep the stored value; a non-nil TagList replaces the whole tag set.
type UpdateArticleRequest struct {
	Title       *string
	Description *string
	Body        *string
	TagList     []string
}

func (r *UpdateArticleRequest) validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return errors.New(errors.ErrValidation, "title is required")
	}
	if r.Description != nil && strings.TrimSpace(*r.Description) == "" {
		return errors.New(errors.ErrValidation, "description is required")
	}
	if r.Body != nil && strings.TrimSpace(*r.Body) == "" {
		return errors.New(errors.ErrValidation, "body is required")
	}
	for _, tag := range r.TagList {
		if tag == "" {
			return errors.New(errors.ErrValidation, "empty tag")
		}
	}
	return nil
}

// UpdateArticle mutates an article owned by the current user. A title
// change regenerates the slug, surfacing a Conflict if the new slug is
// already taken. Tag replacement is remove+insert of relation rows;
// relation keys are never mutated in place.
func (api *API) UpdateArticle(ctx context.Context, slug string, req *UpdateArticleRequest) (_ *ArticleView, err0 error) {
	start := api.now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	actor, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}
	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return nil, err
	}
	if article.AuthorID != actor.ID {
		return nil, errors.Newf(errors.ErrValidation, "article %q is not owned by %q", slug, actor.Username)
	}

	if req.Title != nil && *req.Title != article.Title {
		article.Title = *req.Title
		article.Slug = api.slugger(*req.Title)
		if err := ensureSlugFree(tx, article.Slug, article.ID); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		article.Description = *req.Description
	}
	if req.Body != nil {
		article.Body = *req.Body
	}
	article.UpdatedAt = api.now()
	if err := putArticle(tx, article); err != nil {
		return nil, err
	}

	if req.TagList != nil {
		if _, err := tx.RemoveAll(CacheArticleTags, func(key, value []byte) bool {
			return gridkey.HasID(key, article.ID)
		}); err != nil {
			return nil, errors.Wrap(err, "removing old tag rows")
		}
		if err := putArticleTags(tx, article.ID, req.TagList); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "update article canceled")
	}

	view, err := BuildArticleView(tx, article, actor)
	if err != nil {
		return nil, err
	}
	api.stats.Count("updateArticle", 1)
	api.stats.Timing("updateArticle", api.now().Sub(start))
	return view, nil
}

// DeleteArticle removes the article row matching slug and cascades its
// tag, favorite and comment rows in the same scope, so no orphan
// relation rows survive the commit. A zero removal count is NotFound,
// never a silent success.
func (api *API) DeleteArticle(ctx context.Context, slug string) (err0 error) {
	start := api.now()
	if slug == "" {
		return errors.New(errors.ErrValidation, "slug is required")
	}

	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return err
	}

	removed, err := tx.RemoveAll(CacheArticles, func(key, value []byte) bool {
		return gridkey.HasID(key, article.ID)
	})
	if err != nil {
		return errors.Wrap(err, "removing article")
	}
	if removed == 0 {
		return errors.Newf(errors.ErrNotFound, "article %q", slug)
	}

	// Cascade: relation and child rows referencing the article go in
	// the same scope as the article row itself.
	byArticle := func(key, value []byte) bool { return gridkey.HasID(key, article.ID) }
	if _, err := tx.RemoveAll(CacheArticleTags, byArticle); err != nil {
		return errors.Wrap(err, "cascading tag rows")
	}
	if _, err := tx.RemoveAll(CacheArticleFavorites, byArticle); err != nil {
		return errors.Wrap(err, "cascading favorite rows")
	}
	if _, err := tx.RemoveAll(CacheComments, func(key, value []byte) bool {
		c, err := unmarshalComment(value)
		if err != nil {
			return false
		}
		return c.ArticleID == article.ID
	}); err != nil {
		return errors.Wrap(err, "cascading comment rows")
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "delete article canceled")
	}
	api.stats.Count("deleteArticle", 1)
	api.stats.Timing("deleteArticle", api.now().Sub(start))
	api.logger.Debugf("deleted article %s (%s)", slug, article.ID)
	return nil
}

// GetArticle returns the materialized view of one article.
func (api *API) GetArticle(ctx context.Context, slug string) (*ArticleView, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return nil, err
	}
	viewer, err := api.viewer(ctx, tx)
	if err != nil {
		return nil, err
	}
	return BuildArticleView(tx, article, viewer)
}

// ListArticles returns the filtered page of article views, newest
// first.
func (api *API) ListArticles(ctx context.Context, filter ArticleFilter) ([]*ArticleView, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	articles, err := Articles(tx, filter)
	if err != nil {
		return nil, err
	}
	viewer, err := api.viewer(ctx, tx)
	if err != nil {
		return nil, err
	}
	return BuildArticleViews(tx, articles, viewer)
}

// FeedArticles returns the page of articles by authors the current
// user follows, newest first.
func (api *API) FeedArticles(ctx context.Context, limit, offset int) ([]*ArticleView, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	viewer, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}
	articles, err := Feed(tx, viewer.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return BuildArticleViews(tx, articles, viewer)
}

// FavoriteArticle records the current user's favorite. Favoriting an
// already-favorited article is a no-op.
func (api *API) FavoriteArticle(ctx context.Context, slug string) (*ArticleView, error) {
	return api.setFavorite(ctx, slug, true)
}

// UnfavoriteArticle removes the current user's favorite if present.
func (api *API) UnfavoriteArticle(ctx context.Context, slug string) (*ArticleView, error) {
	return api.setFavorite(ctx, slug, false)
}

func (api *API) setFavorite(ctx context.Context, slug string, favorited bool) (_ *ArticleView, err0 error) {
	start := api.now()
	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	actor, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}
	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return nil, err
	}

	key := gridkey.Pair(article.ID, actor.ID)
	if favorited {
		if err := tx.Put(CacheArticleFavorites, key, nil); err != nil {
			return nil, errors.Wrap(err, "writing favorite row")
		}
	} else {
		if _, err := tx.RemoveAll(CacheArticleFavorites, func(k, v []byte) bool {
			return string(k) == string(key)
		}); err != nil {
			return nil, errors.Wrap(err, "removing favorite row")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "favorite canceled")
	}
	api.stats.Count("favoriteArticle", 1)
	api.stats.Timing("favoriteArticle", api.now().Sub(start))
	return BuildArticleView(tx, article, actor)
}

// AddComment appends a comment by the current user to the article.
func (api *API) AddComment(ctx context.Context, slug, body string) (_ *CommentView, err0 error) {
	start := api.now()
	if strings.TrimSpace(body) == "" {
		return nil, errors.New(errors.ErrValidation, "body is required")
	}

	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	actor, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}
	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return nil, err
	}

	now := api.now()
	comment := &Comment{
		ID:        api.newID(),
		ArticleID: article.ID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	value, err := marshalComment(comment)
	if err != nil {
		return nil, err
	}
	if err := tx.Put(CacheComments, gridkey.ID(comment.ID), value); err != nil {
		return nil, errors.Wrap(err, "writing comment row")
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "add comment canceled")
	}

	profile, err := BuildProfile(tx, actor, actor)
	if err != nil {
		return nil, err
	}
	api.stats.Count("addComment", 1)
	api.stats.Timing("addComment", api.now().Sub(start))
	return &CommentView{Comment: *comment, Author: profile}, nil
}

// DeleteComment removes one comment of the article. Only the comment's
// author may remove it.
func (api *API) DeleteComment(ctx context.Context, slug string, commentID uuid.UUID) (err0 error) {
	start := api.now()
	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	actor, err := api.actor(ctx, tx)
	if err != nil {
		return err
	}
	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return err
	}
	comment, ok, err := getComment(tx, commentID)
	if err != nil {
		return err
	}
	if !ok || comment.ArticleID != article.ID {
		return errors.Newf(errors.ErrNotFound, "comment %s on article %q", commentID, slug)
	}
	if comment.AuthorID != actor.ID {
		return errors.Newf(errors.ErrValidation, "comment %s is not owned by %q", commentID, actor.Username)
	}

	if _, err := tx.RemoveAll(CacheComments, func(key, value []byte) bool {
		return gridkey.HasID(key, commentID)
	}); err != nil {
		return errors.Wrap(err, "removing comment row")
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "delete comment canceled")
	}
	api.stats.Count("deleteComment", 1)
	api.stats.Timing("deleteComment", api.now().Sub(start))
	return nil
}

// ListComments returns the article's comments, oldest first.
func (api *API) ListComments(ctx context.Context, slug string) ([]*CommentView, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	article, err := FindArticleBySlug(tx, slug)
	if err != nil {
		return nil, err
	}
	viewer, err := api.viewer(ctx, tx)
	if err != nil {
		return nil, err
	}
	return CommentViews(tx, article.ID, viewer)
}

// FollowPerson records that the current user follows target. The edge
// is directional and idempotent; following yourself is invalid.
func (api *API) FollowPerson(ctx context.Context, username string) (*Profile, error) {
	return api.setFollow(ctx, username, true)
}

// UnfollowPerson removes the follow edge if present.
func (api *API) UnfollowPerson(ctx context.Context, username string) (*Profile, error) {
	return api.setFollow(ctx, username, false)
}

func (api *API) setFollow(ctx context.Context, username string, following bool) (_ *Profile, err0 error) {
	start := api.now()
	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	actor, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}
	target, err := FindPersonByUsername(tx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, errors.New(errors.ErrValidation, "cannot follow yourself")
	}

	key := gridkey.Pair(actor.ID, target.ID)
	if following {
		if err := tx.Put(CacheFollowedPeople, key, nil); err != nil {
			return nil, errors.Wrap(err, "writing follow row")
		}
	} else {
		if _, err := tx.RemoveAll(CacheFollowedPeople, func(k, v []byte) bool {
			return string(k) == string(key)
		}); err != nil {
			return nil, errors.Wrap(err, "removing follow row")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "follow canceled")
	}

	profile, err := BuildProfile(tx, target, actor)
	if err != nil {
		return nil, err
	}
	api.stats.Count("followPerson", 1)
	api.stats.Timing("followPerson", api.now().Sub(start))
	return &profile, nil
}

// GetProfile returns the public view of one person.
func (api *API) GetProfile(ctx context.Context, username string) (*Profile, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	target, err := FindPersonByUsername(tx, username)
	if err != nil {
		return nil, err
	}
	viewer, err := api.viewer(ctx, tx)
	if err != nil {
		return nil, err
	}
	profile, err := BuildProfile(tx, target, viewer)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// RegisterPersonRequest carries a new person row. The hash and salt
// arrive opaque from the hashing collaborator.
type RegisterPersonRequest struct {
	Username     string
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	Bio          string
	Image        string
}

func (r *RegisterPersonRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return errors.New(errors.ErrValidation, "username is required")
	case strings.TrimSpace(r.Email) == "":
		return errors.New(errors.ErrValidation, "email is required")
	}
	return nil
}

// RegisterPerson writes a new person row, surfacing a Conflict when the
// username or email is already taken.
func (api *API) RegisterPerson(ctx context.Context, req *RegisterPersonRequest) (_ *Person, err0 error) {
	start := api.now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	if err := ensurePersonFree(tx, req.Username, req.Email, uuid.Nil); err != nil {
		return nil, err
	}

	person := &Person{
		ID:           api.newID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
		PasswordSalt: req.PasswordSalt,
		Bio:          req.Bio,
		Image:        req.Image,
	}
	if err := putPerson(tx, person); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "register canceled")
	}
	api.stats.Count("registerPerson", 1)
	api.stats.Timing("registerPerson", api.now().Sub(start))
	api.logger.Debugf("registered person %s (%s)", person.Username, person.ID)
	return person, nil
}

// UpdatePersonRequest carries the mutable person fields. Nil pointers
// keep the stored value.
type UpdatePersonRequest struct {
	Username     *string
	Email        *string
	PasswordHash []byte
	PasswordSalt []byte
	Bio          *string
	Image        *string
}

// UpdatePerson mutates the current user's row, surfacing a Conflict
// when a changed username or email collides with another person's.
func (api *API) UpdatePerson(ctx context.Context, req *UpdatePersonRequest) (_ *Person, err0 error) {
	start := api.now()
	sc := NewScope(api.grid)
	if err := sc.Begin(); err != nil {
		return nil, err
	}
	defer sc.Finish(&err0)
	tx := sc.Tx()

	person, err := api.actor(ctx, tx)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		if strings.TrimSpace(*req.Username) == "" {
			return nil, errors.New(errors.ErrValidation, "username is required")
		}
		person.Username = *req.Username
	}
	if req.Email != nil {
		if strings.TrimSpace(*req.Email) == "" {
			return nil, errors.New(errors.ErrValidation, "email is required")
		}
		person.Email = *req.Email
	}
	if err := ensurePersonFree(tx, person.Username, person.Email, person.ID); err != nil {
		return nil, err
	}
	if req.PasswordHash != nil {
		person.PasswordHash = req.PasswordHash
	}
	if req.PasswordSalt != nil {
		person.PasswordSalt = req.PasswordSalt
	}
	if req.Bio != nil {
		person.Bio = *req.Bio
	}
	if req.Image != nil {
		person.Image = *req.Image
	}
	if err := putPerson(tx, person); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "update person canceled")
	}
	api.stats.Count("updatePerson", 1)
	api.stats.Timing("updatePerson", api.now().Sub(start))
	return person, nil
}

// Tags returns every known tag, sorted.
func (api *API) Tags(ctx context.Context) ([]string, error) {
	tx, err := api.readTx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	return TagNames(tx)
}

// ensureSlugFree surfaces a Conflict when another article (any row but
// self) already owns slug. The uniqueness scan runs inside the write
// transaction, so two concurrent creates of the same slug serialize on
// the grid's writer and the loser sees the winner's row.
func ensureSlugFree(tx Tx, slug string, self uuid.UUID) error {
	other, err := FindArticleBySlug(tx, slug)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if other.ID == self {
		return nil
	}
	return errors.Newf(errors.ErrConflict, "slug %q already exists", slug)
}

func ensurePersonFree(tx Tx, username, email string, self uuid.UUID) error {
	if other, err := FindPersonByUsername(tx, username); err == nil && other.ID != self {
		return errors.Newf(errors.ErrConflict, "username %q already exists", username)
	} else if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	if other, err := FindPersonByEmail(tx, email); err == nil && other.ID != self {
		return errors.Newf(errors.ErrConflict, "email %q already exists", email)
	} else if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	return nil
}

func putArticle(tx Tx, a *Article) error {
	value, err := marshalArticle(a)
	if err != nil {
		return err
	}
	return errors.Wrap(tx.Put(CacheArticles, gridkey.ID(a.ID), value), "writing article row")
}

func putPerson(tx Tx, p *Person) error {
	value, err := marshalPerson(p)
	if err != nil {
		return err
	}
	return errors.Wrap(tx.Put(CachePersons, gridkey.ID(p.ID), value), "writing person row")
}

// putArticleTags upserts the tag existence rows (idempotent, never an
// error when the tag already exists) and the presence-only article-tag
// relation rows.
func putArticleTags(tx Tx, articleID uuid.UUID, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	tagPairs := make([]Pair, 0, len(tags))
	relPairs := make([]Pair, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tagPairs = append(tagPairs, Pair{Key: gridkey.Tag(tag)})
		relPairs = append(relPairs, Pair{Key: gridkey.ArticleTag(articleID, tag)})
	}
	if err := tx.PutAll(CacheTags, tagPairs); err != nil {
		return errors.Wrap(err, "writing tag rows")
	}
	return errors.Wrap(tx.PutAll(CacheArticleTags, relPairs), "writing article tag rows")
}
