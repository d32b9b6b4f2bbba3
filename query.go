// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"sort"

	"github.com/google/uuid"

	"github.com/conduitgrid/conduit/errors"
	"github.com/conduitgrid/conduit/gridkey"
)

// The query layer answers non-key lookups (slug, username, tag
// membership) with predicate scans over the caches, and assembles the
// joined views the domain operations return. The grid indexes by
// primary key only; the scan cost is a known, accepted limitation and
// the strategy is applied for every non-key lookup rather than mixing
// in ad-hoc secondary indexes.

// DefaultArticleLimit applies when a filter doesn't specify a page size.
const DefaultArticleLimit = 20

// ArticleFilter selects and pages articles. Zero-valued fields are
// ignored. An unmatched filter yields an empty slice, not an error, and
// so does paging past the end.
type ArticleFilter struct {
	Tag         string
	Author      string
	FavoritedBy string
	Limit       int
	Offset      int
}

// FindArticleBySlug scans the articles cache for the unique row with
// the given slug.
func FindArticleBySlug(tx Tx, slug string) (*Article, error) {
	var found *Article
	err := tx.ForEach(CacheArticles, func(key, value []byte) error {
		a, err := unmarshalArticle(value)
		if err != nil {
			return err
		}
		if a.Slug == slug {
			found = a
			return ErrStopScan
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning articles")
	}
	if found == nil {
		return nil, errors.Newf(errors.ErrNotFound, "article %q", slug)
	}
	return found, nil
}

// FindPersonByUsername scans the persons cache for the unique row with
// the given username.
func FindPersonByUsername(tx Tx, username string) (*Person, error) {
	return findPerson(tx, func(p *Person) bool { return p.Username == username }, username)
}

// FindPersonByEmail scans the persons cache for the unique row with the
// given email.
func FindPersonByEmail(tx Tx, email string) (*Person, error) {
	return findPerson(tx, func(p *Person) bool { return p.Email == email }, email)
}

func findPerson(tx Tx, match func(*Person) bool, desc string) (*Person, error) {
	var found *Person
	err := tx.ForEach(CachePersons, func(key, value []byte) error {
		p, err := unmarshalPerson(value)
		if err != nil {
			return err
		}
		if match(p) {
			found = p
			return ErrStopScan
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning persons")
	}
	if found == nil {
		return nil, errors.Newf(errors.ErrNotFound, "person %q", desc)
	}
	return found, nil
}

func getPerson(tx Tx, id uuid.UUID) (*Person, bool, error) {
	value, ok, err := tx.Get(CachePersons, gridkey.ID(id))
	if err != nil || !ok {
		return nil, false, err
	}
	p, err := unmarshalPerson(value)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func getComment(tx Tx, id uuid.UUID) (*Comment, bool, error) {
	value, ok, err := tx.Get(CacheComments, gridkey.ID(id))
	if err != nil || !ok {
		return nil, false, err
	}
	c, err := unmarshalComment(value)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Articles scans the articles cache with the filter's predicates and
// returns the matching page, most recently created first. Tag and
// favoritedBy membership are exact-key probes into the relation caches,
// one per scanned article.
func Articles(tx Tx, f ArticleFilter) ([]*Article, error) {
	var authorID uuid.UUID
	if f.Author != "" {
		author, err := FindPersonByUsername(tx, f.Author)
		if errors.Is(err, errors.ErrNotFound) {
			return []*Article{}, nil
		} else if err != nil {
			return nil, err
		}
		authorID = author.ID
	}
	var favoriterID uuid.UUID
	if f.FavoritedBy != "" {
		favoriter, err := FindPersonByUsername(tx, f.FavoritedBy)
		if errors.Is(err, errors.ErrNotFound) {
			return []*Article{}, nil
		} else if err != nil {
			return nil, err
		}
		favoriterID = favoriter.ID
	}

	var matched []*Article
	err := tx.ForEach(CacheArticles, func(key, value []byte) error {
		a, err := unmarshalArticle(value)
		if err != nil {
			return err
		}
		if f.Author != "" && a.AuthorID != authorID {
			return nil
		}
		if f.Tag != "" {
			if _, ok, err := tx.Get(CacheArticleTags, gridkey.ArticleTag(a.ID, f.Tag)); err != nil {
				return err
			} else if !ok {
				return nil
			}
		}
		if f.FavoritedBy != "" {
			if _, ok, err := tx.Get(CacheArticleFavorites, gridkey.Pair(a.ID, favoriterID)); err != nil {
				return err
			} else if !ok {
				return nil
			}
		}
		matched = append(matched, a)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning articles")
	}
	return pageNewestFirst(matched, f.Limit, f.Offset), nil
}

// Feed returns the page of articles authored by persons the viewer
// follows, most recently created first.
func Feed(tx Tx, viewerID uuid.UUID, limit, offset int) ([]*Article, error) {
	followed := map[uuid.UUID]struct{}{}
	err := tx.ForEach(CacheFollowedPeople, func(key, value []byte) error {
		observer, target, err := gridkey.SplitPair(key)
		if err != nil {
			return err
		}
		if observer == viewerID {
			followed[target] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning follows")
	}
	if len(followed) == 0 {
		return []*Article{}, nil
	}

	var matched []*Article
	err = tx.ForEach(CacheArticles, func(key, value []byte) error {
		a, err := unmarshalArticle(value)
		if err != nil {
			return err
		}
		if _, ok := followed[a.AuthorID]; ok {
			matched = append(matched, a)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning articles")
	}
	return pageNewestFirst(matched, limit, offset), nil
}

func pageNewestFirst(articles []*Article, limit, offset int) []*Article {
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.After(articles[j].CreatedAt)
		}
		// stable order for rows created in the same instant
		return articles[i].ID.String() < articles[j].ID.String()
	})
	if limit <= 0 {
		limit = DefaultArticleLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(articles) {
		return []*Article{}
	}
	articles = articles[offset:]
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles
}

// TagNames returns every tag with an existence row, sorted.
func TagNames(tx Tx) ([]string, error) {
	tags := []string{}
	err := tx.ForEach(CacheTags, func(key, value []byte) error {
		tags = append(tags, string(key))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning tags")
	}
	sort.Strings(tags)
	return tags, nil
}

// articleTagSet returns the sorted tag set of one article.
func articleTagSet(tx Tx, articleID uuid.UUID) ([]string, error) {
	tags := []string{}
	err := tx.ForEach(CacheArticleTags, func(key, value []byte) error {
		if !gridkey.HasID(key, articleID) {
			return nil
		}
		_, tag, err := gridkey.SplitArticleTag(key)
		if err != nil {
			return err
		}
		tags = append(tags, tag)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning article tags")
	}
	sort.Strings(tags)
	return tags, nil
}

func favoriteCount(tx Tx, articleID uuid.UUID) (int, error) {
	n := 0
	err := tx.ForEach(CacheArticleFavorites, func(key, value []byte) error {
		if gridkey.HasID(key, articleID) {
			n++
		}
		return nil
	})
	return n, errors.Wrap(err, "scanning favorites")
}

func isFavorited(tx Tx, articleID, personID uuid.UUID) (bool, error) {
	_, ok, err := tx.Get(CacheArticleFavorites, gridkey.Pair(articleID, personID))
	return ok, err
}

func isFollowing(tx Tx, observerID, targetID uuid.UUID) (bool, error) {
	_, ok, err := tx.Get(CacheFollowedPeople, gridkey.Pair(observerID, targetID))
	return ok, err
}

// BuildProfile assembles the public view of target as seen by viewer.
// A nil viewer is an anonymous reader.
func BuildProfile(tx Tx, target *Person, viewer *Person) (Profile, error) {
	p := Profile{
		Username: target.Username,
		Bio:      target.Bio,
		Image:    target.Image,
	}
	if viewer != nil {
		following, err := isFollowing(tx, viewer.ID, target.ID)
		if err != nil {
			return Profile{}, err
		}
		p.Following = following
	}
	return p, nil
}

// BuildArticleView assembles the joined view of one article: author
// profile, sorted tag set, favorite count, and the viewer's favorited
// flag. A missing author means the article is mid-delete; that surfaces
// as NotFound rather than a panic or a half-built view.
func BuildArticleView(tx Tx, a *Article, viewer *Person) (*ArticleView, error) {
	author, ok, err := getPerson(tx, a.AuthorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "author of article %q", a.Slug)
	}
	profile, err := BuildProfile(tx, author, viewer)
	if err != nil {
		return nil, err
	}
	tags, err := articleTagSet(tx, a.ID)
	if err != nil {
		return nil, err
	}
	count, err := favoriteCount(tx, a.ID)
	if err != nil {
		return nil, err
	}
	view := &ArticleView{
		Article:       *a,
		Author:        profile,
		Tags:          tags,
		FavoriteCount: count,
	}
	if viewer != nil {
		favorited, err := isFavorited(tx, a.ID, viewer.ID)
		if err != nil {
			return nil, err
		}
		view.Favorited = favorited
	}
	return view, nil
}

// BuildArticleViews assembles views for a page of articles. Articles
// whose author row is transiently absent (a delete in flight) are
// excluded, not errors.
func BuildArticleViews(tx Tx, articles []*Article, viewer *Person) ([]*ArticleView, error) {
	views := make([]*ArticleView, 0, len(articles))
	for _, a := range articles {
		view, err := BuildArticleView(tx, a, viewer)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// CommentViews assembles the comments of one article, oldest first.
// Comments whose author row is absent are excluded.
func CommentViews(tx Tx, articleID uuid.UUID, viewer *Person) ([]*CommentView, error) {
	var comments []*Comment
	err := tx.ForEach(CacheComments, func(key, value []byte) error {
		c, err := unmarshalComment(value)
		if err != nil {
			return err
		}
		if c.ArticleID == articleID {
			comments = append(comments, c)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning comments")
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID.String() < comments[j].ID.String()
	})

	views := make([]*CommentView, 0, len(comments))
	for _, c := range comments {
		author, ok, err := getPerson(tx, c.AuthorID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		profile, err := BuildProfile(tx, author, viewer)
		if err != nil {
			return nil, err
		}
		views = append(views, &CommentView{Comment: *c, Author: profile})
	}
	return views, nil
}
