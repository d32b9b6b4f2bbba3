// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import "strings"

// SlugFunc derives a url-safe slug from an article title. It must be a
// pure function; collision handling (suffixing or otherwise) is the
// caller's concern, this layer only surfaces the conflict.
type SlugFunc func(title string) string

// GenerateSlug is the default SlugFunc: lower-case the title, collapse
// every run of non-alphanumerics into a single dash, and trim leading
// and trailing dashes.
func GenerateSlug(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
		default:
			dash = true
		}
	}
	return sb.String()
}
