// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/errors"
	"github.com/conduitgrid/conduit/inmem"
	"github.com/conduitgrid/conduit/logger"
)

// fakeClock hands out strictly increasing instants so creation order is
// deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)}
}

// mustAPI returns an API acting as username over the shared grid, with
// its log output routed to the test.
func mustAPI(tb testing.TB, g conduit.Grid, clock *fakeClock, username string) *conduit.API {
	tb.Helper()
	api, err := conduit.NewAPI(g, conduit.StaticUser(username),
		conduit.OptAPIClock(clock.Now),
		conduit.OptAPILogger(logger.NewLogfLogger(tb)),
	)
	if err != nil {
		tb.Fatal(err)
	}
	return api
}

func mustRegister(tb testing.TB, api *conduit.API, username string) *conduit.Person {
	tb.Helper()
	p, err := api.RegisterPerson(context.Background(), &conduit.RegisterPersonRequest{
		Username: username,
		Email:    username + "@example.com",
	})
	if err != nil {
		tb.Fatal(err)
	}
	return p
}

func mustCreateArticle(tb testing.TB, api *conduit.API, title string, tags ...string) *conduit.ArticleView {
	tb.Helper()
	view, err := api.CreateArticle(context.Background(), &conduit.CreateArticleRequest{
		Title:       title,
		Description: "description of " + title,
		Body:        "body of " + title,
		TagList:     tags,
	})
	if err != nil {
		tb.Fatal(err)
	}
	return view
}

// countRows counts the rows of one cache matching pred (nil matches
// everything) in a fresh read transaction.
func countRows(tb testing.TB, g conduit.Grid, cache string, pred conduit.Predicate) int {
	tb.Helper()
	tx, err := g.Begin(false)
	if err != nil {
		tb.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()
	n := 0
	if err := tx.ForEach(cache, func(key, value []byte) error {
		if pred == nil || pred(key, value) {
			n++
		}
		return nil
	}); err != nil {
		tb.Fatal(err)
	}
	return n
}

func TestCreateArticle(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	jake := mustRegister(t, api, "jake")

	view, err := api.CreateArticle(context.Background(), &conduit.CreateArticleRequest{
		Title:       "Hello",
		Description: "greeting",
		Body:        "hello world",
		TagList:     []string{"dragons"},
	})
	require.NoError(t, err)

	if got, want := view.Slug, "hello"; got != want {
		t.Fatalf("slug=%q, want %q", got, want)
	}
	if view.AuthorID != jake.ID {
		t.Fatalf("authorID=%s, want %s", view.AuthorID, jake.ID)
	}
	if got, want := view.Author.Username, "jake"; got != want {
		t.Fatalf("author=%q, want %q", got, want)
	}
	require.Equal(t, []string{"dragons"}, view.Tags)
	if view.FavoriteCount != 0 || view.Favorited {
		t.Fatalf("fresh article has favorite state: %+v", view)
	}
	if view.CreatedAt.IsZero() || !view.CreatedAt.Equal(view.UpdatedAt) {
		t.Fatalf("timestamps: created=%s updated=%s", view.CreatedAt, view.UpdatedAt)
	}

	// Reading it back goes through the same join assembly.
	got, err := api.GetArticle(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, view.ID, got.ID)
	require.Equal(t, []string{"dragons"}, got.Tags)
}

func TestCreateArticle_SlugConflict(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")

	mustCreateArticle(t, api, "Hello")
	_, err := api.CreateArticle(context.Background(), &conduit.CreateArticleRequest{
		Title:       "Hello",
		Description: "again",
		Body:        "again",
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("second create=%v, want Conflict", err)
	}

	// The failed create must not leave a second row behind.
	if got, want := countRows(t, g, conduit.CacheArticles, nil), 1; got != want {
		t.Fatalf("%d article rows, want %d", got, want)
	}
}

func TestCreateArticle_Validation(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")

	for _, req := range []*conduit.CreateArticleRequest{
		{Title: "", Description: "d", Body: "b"},
		{Title: "t", Description: "", Body: "b"},
		{Title: "t", Description: "d", Body: ""},
		{Title: "t", Description: "d", Body: "b", TagList: []string{""}},
	} {
		if _, err := api.CreateArticle(context.Background(), req); !errors.Is(err, errors.ErrValidation) {
			t.Fatalf("CreateArticle(%+v)=%v, want Validation", req, err)
		}
	}
	if got := countRows(t, g, conduit.CacheArticles, nil); got != 0 {
		t.Fatalf("%d article rows after rejected creates, want 0", got)
	}
}

func TestCreateArticle_TagRows(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")

	first := mustCreateArticle(t, api, "First", "x", "y", "x")
	require.Equal(t, []string{"x", "y"}, first.Tags)

	// Exactly one relation row per distinct tag, exactly one existence
	// row per tag.
	if got, want := countRows(t, g, conduit.CacheArticleTags, nil), 2; got != want {
		t.Fatalf("%d article tag rows, want %d", got, want)
	}
	if got, want := countRows(t, g, conduit.CacheTags, nil), 2; got != want {
		t.Fatalf("%d tag rows, want %d", got, want)
	}

	// A second article reusing a tag must not duplicate the existence
	// row.
	second := mustCreateArticle(t, api, "Second", "x", "z")
	require.Equal(t, []string{"x", "z"}, second.Tags)
	if got, want := countRows(t, g, conduit.CacheTags, nil), 3; got != want {
		t.Fatalf("%d tag rows after reuse, want %d", got, want)
	}

	tags, err := api.Tags(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, tags)
}

func TestCreateArticle_Canceled(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := api.CreateArticle(ctx, &conduit.CreateArticleRequest{
		Title:       "Hello",
		Description: "d",
		Body:        "b",
		TagList:     []string{"x"},
	})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}

	// Cancellation between Begin and Commit must leave no writes.
	for _, cache := range []string{conduit.CacheArticles, conduit.CacheTags, conduit.CacheArticleTags} {
		if got := countRows(t, g, cache, nil); got != 0 {
			t.Fatalf("cache %q has %d rows after canceled create, want 0", cache, got)
		}
	}
}

func TestUpdateArticle(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")
	mustCreateArticle(t, api, "Hello", "x", "y")

	newTitle := "Goodbye"
	newBody := "farewell"
	view, err := api.UpdateArticle(context.Background(), "hello", &conduit.UpdateArticleRequest{
		Title:   &newTitle,
		Body:    &newBody,
		TagList: []string{"z"},
	})
	require.NoError(t, err)

	// Title change regenerates the slug.
	require.Equal(t, "goodbye", view.Slug)
	require.Equal(t, "farewell", view.Body)
	require.Equal(t, "description of Hello", view.Description)
	require.Equal(t, []string{"z"}, view.Tags)
	if !view.UpdatedAt.After(view.CreatedAt) {
		t.Fatalf("UpdatedAt=%s not after CreatedAt=%s", view.UpdatedAt, view.CreatedAt)
	}

	// The old slug is gone, the old tag rows are gone.
	if _, err := api.GetArticle(context.Background(), "hello"); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetArticle(old slug)=%v, want NotFound", err)
	}
	if got, want := countRows(t, g, conduit.CacheArticleTags, nil), 1; got != want {
		t.Fatalf("%d article tag rows after replacement, want %d", got, want)
	}
}

func TestUpdateArticle_NotOwner(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")
	mustCreateArticle(t, jake, "Hello")

	title := "Stolen"
	_, err := anne.UpdateArticle(context.Background(), "hello", &conduit.UpdateArticleRequest{Title: &title})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("update by non-owner=%v, want Validation", err)
	}
}

func TestUpdateArticle_SlugConflict(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")
	mustCreateArticle(t, api, "Hello")
	mustCreateArticle(t, api, "Goodbye")

	title := "Hello"
	_, err := api.UpdateArticle(context.Background(), "goodbye", &conduit.UpdateArticleRequest{Title: &title})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("update onto taken slug=%v, want Conflict", err)
	}

	// Retitling to the same title keeps the slug and is not a conflict.
	same := "Goodbye"
	view, err := api.UpdateArticle(context.Background(), "goodbye", &conduit.UpdateArticleRequest{Title: &same})
	require.NoError(t, err)
	require.Equal(t, "goodbye", view.Slug)
}

func TestDeleteArticle(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")

	doomed := mustCreateArticle(t, jake, "Doomed", "x")
	kept := mustCreateArticle(t, jake, "Kept", "x")

	// Hang favorites and comments off both articles.
	if _, err := anne.FavoriteArticle(context.Background(), "doomed"); err != nil {
		t.Fatal(err)
	}
	if _, err := anne.FavoriteArticle(context.Background(), "kept"); err != nil {
		t.Fatal(err)
	}
	if _, err := anne.AddComment(context.Background(), "doomed", "nice"); err != nil {
		t.Fatal(err)
	}
	if _, err := anne.AddComment(context.Background(), "kept", "nice"); err != nil {
		t.Fatal(err)
	}

	require.NoError(t, jake.DeleteArticle(context.Background(), "doomed"))

	// The article and every dependent row are gone in one commit.
	if _, err := jake.GetArticle(context.Background(), "doomed"); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetArticle(deleted)=%v, want NotFound", err)
	}
	if got := countRows(t, g, conduit.CacheArticles, nil); got != 1 {
		t.Fatalf("%d article rows, want 1", got)
	}
	for _, cache := range []string{conduit.CacheArticleTags, conduit.CacheArticleFavorites} {
		tx, err := g.Begin(false)
		require.NoError(t, err)
		err = tx.ForEach(cache, func(key, value []byte) error {
			if string(key[:16]) == string(doomed.ID[:]) {
				t.Fatalf("cache %q still references deleted article", cache)
			}
			return nil
		})
		require.NoError(t, err)
		_ = tx.Rollback()
	}

	// The sibling article's rows survive.
	view, err := anne.GetArticle(context.Background(), "kept")
	require.NoError(t, err)
	require.Equal(t, kept.ID, view.ID)
	require.Equal(t, []string{"x"}, view.Tags)
	require.Equal(t, 1, view.FavoriteCount)
	comments, err := anne.ListComments(context.Background(), "kept")
	require.NoError(t, err)
	require.Len(t, comments, 1)

	// Deleting what is not there reports NotFound and changes nothing.
	err = jake.DeleteArticle(context.Background(), "doomed")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("second delete=%v, want NotFound", err)
	}
	if got := countRows(t, g, conduit.CacheArticles, nil); got != 1 {
		t.Fatalf("%d article rows after failed delete, want 1", got)
	}
}

func TestFavoriteArticle(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")
	mustCreateArticle(t, jake, "Hello")

	view, err := anne.FavoriteArticle(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, view.Favorited)
	require.Equal(t, 1, view.FavoriteCount)

	// Favoriting twice is a no-op.
	view, err = anne.FavoriteArticle(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 1, view.FavoriteCount)

	// The author's own view counts the favorite but is not favorited.
	view, err = jake.GetArticle(context.Background(), "hello")
	require.NoError(t, err)
	require.False(t, view.Favorited)
	require.Equal(t, 1, view.FavoriteCount)

	view, err = anne.UnfavoriteArticle(context.Background(), "hello")
	require.NoError(t, err)
	require.False(t, view.Favorited)
	require.Equal(t, 0, view.FavoriteCount)

	// Unfavoriting when not favorited is a no-op, not an error.
	if _, err := anne.UnfavoriteArticle(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
}

func TestComments(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")
	mustCreateArticle(t, jake, "Hello")

	first, err := anne.AddComment(context.Background(), "hello", "first!")
	require.NoError(t, err)
	require.Equal(t, "anne", first.Author.Username)
	second, err := jake.AddComment(context.Background(), "hello", "thanks")
	require.NoError(t, err)

	if _, err := anne.AddComment(context.Background(), "hello", "  "); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("blank comment=%v, want Validation", err)
	}

	// Oldest first.
	comments, err := anne.ListComments(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, first.ID, comments[0].ID)
	require.Equal(t, second.ID, comments[1].ID)

	// Only the comment's author may delete it.
	err = jake.DeleteComment(context.Background(), "hello", first.ID)
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("delete by non-author=%v, want Validation", err)
	}
	require.NoError(t, anne.DeleteComment(context.Background(), "hello", first.ID))

	comments, err = anne.ListComments(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, comments, 1)

	// Deleting a comment through the wrong article is NotFound.
	mustCreateArticle(t, jake, "Other")
	err = jake.DeleteComment(context.Background(), "other", second.ID)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("delete through wrong article=%v, want NotFound", err)
	}
}

func TestFollowAndFeed(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	cory := mustAPI(t, g, clock, "cory")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")
	mustRegister(t, cory, "cory")

	older := mustCreateArticle(t, anne, "Older")
	newer := mustCreateArticle(t, anne, "Newer")
	mustCreateArticle(t, cory, "Unrelated")

	// Before following, the feed is empty.
	feed, err := jake.FeedArticles(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, feed)

	profile, err := jake.FollowPerson(context.Background(), "anne")
	require.NoError(t, err)
	require.True(t, profile.Following)

	// Follow state is per-viewer.
	p, err := cory.GetProfile(context.Background(), "anne")
	require.NoError(t, err)
	require.False(t, p.Following)

	// The feed holds only followed authors' articles, newest first.
	feed, err = jake.FeedArticles(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, newer.ID, feed[0].ID)
	require.Equal(t, older.ID, feed[1].ID)
	require.True(t, feed[0].Author.Following)

	// Following is directional and idempotent.
	if _, err := jake.FollowPerson(context.Background(), "anne"); err != nil {
		t.Fatal(err)
	}
	if got := countRows(t, g, conduit.CacheFollowedPeople, nil); got != 1 {
		t.Fatalf("%d follow rows, want 1", got)
	}

	// Following yourself is invalid.
	if _, err := jake.FollowPerson(context.Background(), "jake"); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("self-follow=%v, want Validation", err)
	}

	profile, err = jake.UnfollowPerson(context.Background(), "anne")
	require.NoError(t, err)
	require.False(t, profile.Following)
	feed, err = jake.FeedArticles(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, feed)
}

func TestListArticles(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")

	a1 := mustCreateArticle(t, jake, "One", "go")
	a2 := mustCreateArticle(t, anne, "Two", "go", "db")
	a3 := mustCreateArticle(t, jake, "Three", "db")
	if _, err := anne.FavoriteArticle(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// Unfiltered: newest first.
	views, err := jake.ListArticles(ctx, conduit.ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, a3.ID, views[0].ID)
	require.Equal(t, a2.ID, views[1].ID)
	require.Equal(t, a1.ID, views[2].ID)

	// Tag filter.
	views, err = jake.ListArticles(ctx, conduit.ArticleFilter{Tag: "go"})
	require.NoError(t, err)
	require.Len(t, views, 2)

	// Author filter.
	views, err = jake.ListArticles(ctx, conduit.ArticleFilter{Author: "anne"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, a2.ID, views[0].ID)

	// FavoritedBy filter.
	views, err = jake.ListArticles(ctx, conduit.ArticleFilter{FavoritedBy: "anne"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, a1.ID, views[0].ID)

	// Unmatched filters yield empty slices, not errors.
	for _, f := range []conduit.ArticleFilter{
		{Tag: "nosuchtag"},
		{Author: "nobody"},
		{FavoritedBy: "nobody"},
	} {
		views, err = jake.ListArticles(ctx, f)
		require.NoError(t, err)
		require.Empty(t, views)
	}

	// Paging: offset past the end is empty, a limit slices the page.
	views, err = jake.ListArticles(ctx, conduit.ArticleFilter{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, views)
	views, err = jake.ListArticles(ctx, conduit.ArticleFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, a2.ID, views[0].ID)
}

func TestRegisterPerson(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	jake := mustRegister(t, api, "jake")
	require.Equal(t, "jake", jake.Username)

	// Username and email uniqueness.
	_, err := api.RegisterPerson(context.Background(), &conduit.RegisterPersonRequest{
		Username: "jake", Email: "other@example.com",
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("duplicate username=%v, want Conflict", err)
	}
	_, err = api.RegisterPerson(context.Background(), &conduit.RegisterPersonRequest{
		Username: "other", Email: "jake@example.com",
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("duplicate email=%v, want Conflict", err)
	}

	_, err = api.RegisterPerson(context.Background(), &conduit.RegisterPersonRequest{Username: "", Email: "x@example.com"})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("blank username=%v, want Validation", err)
	}
}

func TestUpdatePerson(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	jake := mustAPI(t, g, clock, "jake")
	anne := mustAPI(t, g, clock, "anne")
	mustRegister(t, jake, "jake")
	mustRegister(t, anne, "anne")

	bio := "gopher"
	p, err := jake.UpdatePerson(context.Background(), &conduit.UpdatePersonRequest{Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "gopher", p.Bio)
	require.Equal(t, "jake", p.Username)

	// Colliding with another person's username is a conflict.
	taken := "anne"
	_, err = jake.UpdatePerson(context.Background(), &conduit.UpdatePersonRequest{Username: &taken})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("update to taken username=%v, want Conflict", err)
	}

	// Keeping your own username is not a self-conflict.
	same := "jake"
	p, err = jake.UpdatePerson(context.Background(), &conduit.UpdatePersonRequest{Username: &same})
	require.NoError(t, err)
	require.Equal(t, "jake", p.Username)
}

func TestWriteByUnknownUser(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "ghost")

	_, err := api.CreateArticle(context.Background(), &conduit.CreateArticleRequest{
		Title: "t", Description: "d", Body: "b",
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("create by unknown user=%v, want NotFound", err)
	}

	anon := mustAPI(t, g, clock, "")
	if _, err := anon.FeedArticles(context.Background(), 0, 0); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("feed for anonymous=%v, want NotFound", err)
	}
}

// spyStats records which stats each operation emits.
type spyStats struct {
	mu      sync.Mutex
	counts  map[string]int64
	timings map[string]int
}

func newSpyStats() *spyStats {
	return &spyStats{counts: map[string]int64{}, timings: map[string]int{}}
}

func (s *spyStats) Count(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += value
}

func (s *spyStats) Timing(name string, value time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings[name]++
}

func (s *spyStats) Close() error { return nil }

// TestStatsPerOperation checks that every mutating operation records
// both a count and a timing under the same stat name.
func TestStatsPerOperation(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	stats := newSpyStats()
	api, err := conduit.NewAPI(g, conduit.StaticUser("jake"),
		conduit.OptAPIClock(clock.Now),
		conduit.OptAPIStatsClient(stats),
	)
	if err != nil {
		t.Fatal(err)
	}
	mustRegister(t, api, "jake")
	mustRegister(t, api, "anne")
	mustCreateArticle(t, api, "Hello", "x")

	ctx := context.Background()
	newTitle := "Goodbye"
	if _, err := api.UpdateArticle(ctx, "hello", &conduit.UpdateArticleRequest{Title: &newTitle}); err != nil {
		t.Fatal(err)
	}
	if _, err := api.FavoriteArticle(ctx, "goodbye"); err != nil {
		t.Fatal(err)
	}
	comment, err := api.AddComment(ctx, "goodbye", "nice")
	if err != nil {
		t.Fatal(err)
	}
	if err := api.DeleteComment(ctx, "goodbye", comment.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := api.FollowPerson(ctx, "anne"); err != nil {
		t.Fatal(err)
	}
	bio := "gopher"
	if _, err := api.UpdatePerson(ctx, &conduit.UpdatePersonRequest{Bio: &bio}); err != nil {
		t.Fatal(err)
	}
	if err := api.DeleteArticle(ctx, "goodbye"); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"registerPerson",
		"createArticle",
		"updateArticle",
		"favoriteArticle",
		"addComment",
		"deleteComment",
		"followPerson",
		"updatePerson",
		"deleteArticle",
	} {
		if stats.counts[name] == 0 {
			t.Errorf("no count recorded for %q", name)
		}
		if stats.timings[name] == 0 {
			t.Errorf("no timing recorded for %q", name)
		}
	}
}

func TestConcurrentCreates(t *testing.T) {
	g := inmem.NewGrid(conduit.CacheNames())
	defer g.Close()
	clock := newFakeClock()
	api := mustAPI(t, g, clock, "jake")
	mustRegister(t, api, "jake")

	// Concurrent creates of distinct titles all serialize on the grid's
	// writer and all commit.
	titles := []string{"Alpha", "Beta", "Gamma", "Delta"}
	errs := make(chan error, len(titles))
	for _, title := range titles {
		title := title
		go func() {
			_, err := api.CreateArticle(context.Background(), &conduit.CreateArticleRequest{
				Title:       title,
				Description: "d",
				Body:        "b",
			})
			errs <- err
		}()
	}
	for range titles {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
	if got, want := countRows(t, g, conduit.CacheArticles, nil), len(titles); got != want {
		t.Fatalf("%d article rows, want %d", got, want)
	}
}
