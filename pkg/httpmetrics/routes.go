/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import "regexp"

type pathPattern struct {
	pattern *regexp.Regexp
	bucket  string
}

// Paths are collapsed to templates so that shas and repository names do
// not explode label cardinality.
var routePatterns = map[string][]pathPattern{
	"api.github.com": {{
		// https://docs.github.com/en/rest/commits/statuses#list-commit-statuses-for-a-reference
		pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/commits/[^/]+/statuses$`),
		bucket:  "/repos/{org}/{repo}/commits/{ref}/statuses",
	}, {
		// https://docs.github.com/en/rest/commits/statuses#create-a-commit-status
		pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/statuses/[^/]+$`),
		bucket:  "/repos/{org}/{repo}/statuses/{sha}",
	}, {
		pattern: regexp.MustCompile(`^/app/installations/\d+/access_tokens$`),
		bucket:  "/app/installations/{id}/access_tokens",
	}},
	"cr-buildbucket.appspot.com": {{
		pattern: regexp.MustCompile(`^/prpc/buildbucket\.v2\.Builds/[A-Za-z]+$`),
		bucket:  "/prpc/buildbucket.v2.Builds/{method}",
	}},
}

func route(host, path string) string {
	for _, p := range routePatterns[host] {
		if p.pattern.MatchString(path) {
			return p.bucket
		}
	}
	return "unknown"
}
