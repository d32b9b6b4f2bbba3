// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package gridkey consolidates in one place the byte layouts of the
// keys used to index into the entity and relation caches, so that the
// boltdb and inmem backends (and any debug dumps) stay comparable.
//
// Entity caches are keyed by the raw 16 bytes of the row's UUID. The
// tags cache is keyed by the tag text itself; there is no surrogate id.
//
// Relation caches are keyed by composite tuples:
//
//	article_tags:       uuid[16] || tag text   (variable length, >= 17 bytes)
//	article_favorites:  uuid[16] || uuid[16]   (exactly 32 bytes)
//	followed_people:    uuid[16] || uuid[16]   (exactly 32 bytes)
//
// The fixed-width UUID prefix means no separator byte is needed and a
// prefix match on the first 16 bytes selects all edges of one entity.
// Composite keys are immutable once written; a relation update is
// remove+insert, never an in-place key mutation.
package gridkey

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const idLen = 16

// ID produces the entity-cache key for a row identifier.
func ID(id uuid.UUID) []byte {
	b := make([]byte, idLen)
	copy(b, id[:])
	return b
}

// ParseID decodes an entity-cache key.
func ParseID(key []byte) (uuid.UUID, error) {
	if len(key) != idLen {
		return uuid.Nil, errors.Errorf("gridkey: id key must be %d bytes, got %d", idLen, len(key))
	}
	var id uuid.UUID
	copy(id[:], key)
	return id, nil
}

// Tag produces the tags-cache key for a tag. Tag text doubles as the
// identifier, so the empty tag is not representable.
func Tag(tag string) []byte {
	return []byte(tag)
}

// ArticleTag produces the article_tags relation key.
func ArticleTag(articleID uuid.UUID, tag string) []byte {
	b := make([]byte, 0, idLen+len(tag))
	b = append(b, articleID[:]...)
	return append(b, tag...)
}

// SplitArticleTag decodes an article_tags relation key.
func SplitArticleTag(key []byte) (articleID uuid.UUID, tag string, err error) {
	if len(key) <= idLen {
		return uuid.Nil, "", errors.Errorf("gridkey: article tag key must be longer than %d bytes, got %d", idLen, len(key))
	}
	copy(articleID[:], key[:idLen])
	return articleID, string(key[idLen:]), nil
}

// Pair produces a two-identifier relation key (article_favorites,
// followed_people).
func Pair(a, b uuid.UUID) []byte {
	k := make([]byte, 0, 2*idLen)
	k = append(k, a[:]...)
	return append(k, b[:]...)
}

// SplitPair decodes a two-identifier relation key.
func SplitPair(key []byte) (a, b uuid.UUID, err error) {
	if len(key) != 2*idLen {
		return uuid.Nil, uuid.Nil, errors.Errorf("gridkey: pair key must be %d bytes, got %d", 2*idLen, len(key))
	}
	copy(a[:], key[:idLen])
	copy(b[:], key[idLen:])
	return a, b, nil
}

// HasID reports whether a relation key's leading identifier is id.
func HasID(key []byte, id uuid.UUID) bool {
	return len(key) >= idLen && bytes.Equal(key[:idLen], id[:])
}

// HasSecondID reports whether a pair key's trailing identifier is id.
func HasSecondID(key []byte, id uuid.UUID) bool {
	return len(key) == 2*idLen && bytes.Equal(key[idLen:], id[:])
}
