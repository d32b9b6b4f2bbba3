// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"encoding/json"

	"github.com/conduitgrid/conduit/errors"
)

// Entity rows are stored as json. Relation rows in article_tags,
// article_favorites and followed_people carry no value at all; the key
// is the whole fact.

func marshalArticle(a *Article) ([]byte, error) {
	b, err := json.Marshal(a)
	return b, errors.Wrap(err, "marshaling article")
}

func unmarshalArticle(b []byte) (*Article, error) {
	a := &Article{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, errors.Wrap(err, "unmarshaling article")
	}
	return a, nil
}

func marshalPerson(p *Person) ([]byte, error) {
	b, err := json.Marshal(p)
	return b, errors.Wrap(err, "marshaling person")
}

func unmarshalPerson(b []byte) (*Person, error) {
	p := &Person{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "unmarshaling person")
	}
	return p, nil
}

func marshalComment(c *Comment) ([]byte, error) {
	b, err := json.Marshal(c)
	return b, errors.Wrap(err, "marshaling comment")
}

func unmarshalComment(b []byte) (*Comment, error) {
	c := &Comment{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "unmarshaling comment")
	}
	return c, nil
}
