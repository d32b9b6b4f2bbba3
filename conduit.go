// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package conduit maps a relational content model (articles, tags,
// favorites, follows, comments, authors) onto a key-value cache grid
// that has no native support for joins, foreign keys, or multi-entity
// transactions.
//
// Each entity type lives in its own cache keyed by a generated
// identifier. Relationships are modeled as independent relation caches
// keyed by composite tuples of the related identifiers (see gridkey for
// the byte layouts). Lookups by non-key attributes (slug, username) are
// predicate scans; there are no secondary indexes. A logical operation
// that touches more than one cache runs inside a Scope so its writes
// become visible to other transactions all-or-nothing.
package conduit

import (
	"time"

	"github.com/google/uuid"
)

// Cache names address the logical namespaces on the grid, one per
// entity or relation type.
const (
	CacheArticles         = "articles"
	CachePersons          = "persons"
	CacheComments         = "comments"
	CacheTags             = "tags"
	CacheArticleTags      = "article_tags"
	CacheArticleFavorites = "article_favorites"
	CacheFollowedPeople   = "followed_people"
)

// CacheNames returns every cache the model needs, in the order backends
// should create them.
func CacheNames() []string {
	return []string{
		CacheArticles,
		CachePersons,
		CacheComments,
		CacheTags,
		CacheArticleTags,
		CacheArticleFavorites,
		CacheFollowedPeople,
	}
}

// Article is a row in the articles cache, keyed by ID. Slug is globally
// unique and derived from the title; uniqueness is enforced by scan at
// write time since the grid only indexes by key.
type Article struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Body        string    `json:"body"`
	AuthorID    uuid.UUID `json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Person is a row in the persons cache, keyed by ID. Username and email
// are unique. The hash and salt are opaque to this layer; hashing
// itself belongs to an external collaborator.
type Person struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"passwordHash,omitempty"`
	PasswordSalt []byte    `json:"passwordSalt,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Image        string    `json:"image,omitempty"`
}

// Comment is a row in the comments cache, keyed by ID. ArticleID and
// AuthorID reference the articles and persons caches; the references
// are not enforced by the grid, only by the cascade in DeleteArticle.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	ArticleID uuid.UUID `json:"articleId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tags have no surrogate id: the tag text is the key and the row value
// is empty. The article_tags relation rows are presence-only as well.
// Favorite and follow relation rows likewise carry no value; the
// composite key is the whole fact.

// Profile is the public view of a Person as seen by a viewer.
type Profile struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	Image     string `json:"image"`
	Following bool   `json:"following"`
}

// ArticleView is the materialized join of an article with its author,
// tag set and favorite state, assembled by the query layer.
type ArticleView struct {
	Article
	Author        Profile  `json:"author"`
	Tags          []string `json:"tagList"`
	FavoriteCount int      `json:"favoritesCount"`
	Favorited     bool     `json:"favorited"`
}

// CommentView is the materialized join of a comment with its author.
type CommentView struct {
	Comment
	Author Profile `json:"author"`
}
