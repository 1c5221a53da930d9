// Package versions orders board package version strings. A version is a
// dot-separated run of numeric release components of any length, optionally
// followed by a pre-release suffix in either semver ("2.0.0-beta.2") or
// PEP 440 ("2.0.0rc1") spelling. Strings that are not versions never cause an
// error: they sort below every valid version and compare equal to each other,
// so noise in a published index cannot break reconciliation.
package versions

import (
	"errors"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/mod/semver"
)

// ErrEmptyInput is returned by Max for an empty list.
var ErrEmptyInput = errors.New("no versions to compare")

const cacheSize = 4096

var (
	releasePattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)(.*)$`)
	suffixPattern  = regexp.MustCompile(`^[0-9a-z]+(?:[._-][0-9a-z]+)*$`)
	identPattern   = regexp.MustCompile(`[a-z]+|[0-9]+`)
)

// version is a parsed version string. A nil release means malformed.
type version struct {
	release []string
	pre     []string
}

var parseCache *lru.Cache[string, version]

func init() {
	c, err := lru.New[string, version](cacheSize)
	if err != nil {
		panic(err)
	}
	parseCache = c
}

func lookup(v string) version {
	if p, ok := parseCache.Get(v); ok {
		return p
	}
	p := parse(v)
	parseCache.Add(v, p)
	return p
}

func parse(v string) version {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}

	m := releasePattern.FindStringSubmatch(v)
	if m == nil {
		return version{}
	}
	var p version
	for _, n := range strings.Split(m[1], ".") {
		p.release = append(p.release, trimZeros(n))
	}
	// 1.2.0 == 1.2
	for len(p.release) > 1 && p.release[len(p.release)-1] == "0" {
		p.release = p.release[:len(p.release)-1]
	}

	suffix := m[2]
	if suffix == "" {
		return p
	}
	if strings.ContainsAny(suffix[:1], "._-") {
		suffix = suffix[1:]
	}
	if !suffixPattern.MatchString(suffix) {
		return version{}
	}
	// "rc11" is the identifiers "rc" and "11"
	for _, id := range identPattern.FindAllString(suffix, -1) {
		if id[0] >= '0' && id[0] <= '9' {
			id = trimZeros(id)
		}
		p.pre = append(p.pre, id)
	}
	return p
}

func trimZeros(n string) string {
	n = strings.TrimLeft(n, "0")
	if n == "" {
		return "0"
	}
	return n
}

// Canonical returns the normalized "vMAJOR.MINOR.PATCH[.N...][-PRE]" form of
// v, or "" if v is not a valid version. Versions that compare equal have the
// same canonical form.
func Canonical(v string) string {
	p := lookup(v)
	if p.release == nil {
		return ""
	}
	release := p.release
	for len(release) < 3 {
		release = append(release[:len(release):len(release)], "0")
	}
	c := "v" + strings.Join(release, ".")
	if len(p.pre) > 0 {
		c += "-" + strings.Join(p.pre, ".")
	}
	return c
}

// IsValid reports whether v parses as a version.
func IsValid(v string) bool {
	return lookup(v).release != nil
}

// Compare returns -1, 0 or +1 as a is lower than, equal to or greater than b.
func Compare(a, b string) int {
	pa, pb := lookup(a), lookup(b)
	switch {
	case pa.release == nil && pb.release == nil:
		return 0
	case pa.release == nil:
		return -1
	case pb.release == nil:
		return 1
	}

	for i := 0; i < len(pa.release) || i < len(pb.release); i++ {
		if c := compareNumeric(component(pa.release, i), component(pb.release, i)); c != 0 {
			return c
		}
	}

	switch {
	case len(pa.pre) == 0 && len(pb.pre) == 0:
		return 0
	case len(pa.pre) == 0:
		return 1
	case len(pb.pre) == 0:
		return -1
	}
	// Identifiers are normalized to valid semver pre-release form, so only
	// the pre-release part decides here.
	return semver.Compare("v0.0.0-"+strings.Join(pa.pre, "."), "v0.0.0-"+strings.Join(pb.pre, "."))
}

func component(release []string, i int) string {
	if i < len(release) {
		return release[i]
	}
	return "0"
}

// compareNumeric compares decimal strings without leading zeros, so
// components of any length order correctly.
func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Less reports whether a sorts strictly below b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Max returns the greatest version in list. Among equal versions the first
// one wins, so the result is always an element of list as written.
func Max(list []string) (string, error) {
	if len(list) == 0 {
		return "", ErrEmptyInput
	}
	best := list[0]
	for _, v := range list[1:] {
		if Compare(v, best) > 0 {
			best = v
		}
	}
	return best, nil
}
