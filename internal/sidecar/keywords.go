package sidecar

import (
	"regexp"
	"strings"
)

var clusterKeyword = regexp.MustCompile(`^([^/]+?)_cluster_([A-Za-z]+)_([0-9]+)$`)

// Hierarchical returns the hierarchical keyword for a flat tag. Tags of the
// form <prefix>_cluster_<level>_<number> become
// <PREFIX>/cluster/<level>/<number>; anything else is returned unchanged.
func Hierarchical(tag string) string {
	m := clusterKeyword.FindStringSubmatch(tag)
	if m == nil {
		return tag
	}
	return strings.ToUpper(m[1]) + "/cluster/" + m[2] + "/" + m[3]
}

// Keyword returns the flat keyword written for a cluster tag such as
// "fine_003". With prefix "ai" that is "ai_cluster_fine_003"; an empty
// prefix keeps the tag as is.
func Keyword(tag, prefix string) string {
	if prefix == "" {
		return tag
	}
	return prefix + "_cluster_" + tag
}

// ValidPrefix reports whether keywords built with prefix get their
// hierarchical rewrite. The empty prefix is valid; a prefix containing a
// slash is not.
func ValidPrefix(prefix string) bool {
	if prefix == "" {
		return true
	}
	return Hierarchical(Keyword("fine_000", prefix)) == strings.ToUpper(prefix)+"/cluster/fine/000"
}

// Keywords maps Keyword over tags.
func Keywords(tags []string, prefix string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = Keyword(t, prefix)
	}
	return out
}
