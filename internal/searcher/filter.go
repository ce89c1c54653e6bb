package searcher

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// nameToken is one compiled token of the wildcard file name filter.
type nameToken struct {
	re      *regexp.Regexp
	exclude bool
}

// parseNameTokens splits a |-separated wildcard list into compiled tokens.
// A leading '-' marks an exclusion. A token ending in ".*" also admits the
// same name without an extension, so "*.*" covers extensionless files.
func parseNameTokens(spec string) []nameToken {
	var raw []string
	for _, s := range strings.Split(spec, "|") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		raw = append(raw, s)
		if len(s) > 2 && strings.HasSuffix(s, ".*") {
			raw = append(raw, s[:len(s)-2])
		}
	}

	tokens := make([]nameToken, 0, len(raw))
	for _, s := range raw {
		exclude := false
		if s[0] == '-' {
			exclude = true
			s = s[1:]
			if s == "" {
				continue
			}
		}
		tokens = append(tokens, nameToken{re: wildcardRegexp(s), exclude: exclude})
	}
	return tokens
}

// wildcardRegexp compiles a shell-style wildcard into an anchored,
// case-insensitive regexp. '*' matches any run, '?' a single character.
func wildcardRegexp(token string) *regexp.Regexp {
	expr := regexp.QuoteMeta(token)
	expr = strings.ReplaceAll(expr, `\*`, `.*`)
	expr = strings.ReplaceAll(expr, `\?`, `.`)
	return regexp.MustCompile(`(?i)^` + expr + `$`)
}

// matchName reports whether the file name filter admits the path. Wildcard
// tokens are tested against the bare name; a regex filter is tested against
// the bare name and, failing that, the full path. An empty filter admits
// everything.
func (c *compiledRequest) matchName(path string) bool {
	name := filepath.Base(path)
	if c.nameRegex != nil {
		return c.nameRegex.MatchString(name) || c.nameRegex.MatchString(path)
	}
	if len(c.namePatterns) == 0 {
		return true
	}

	// When the list opens with an exclusion the default flips to "admit",
	// so "-*.bak" alone means everything except .bak files.
	result := c.namePatterns[0].exclude
	for _, t := range c.namePatterns {
		if t.exclude {
			result = result && !t.re.MatchString(name)
		} else {
			result = result || t.re.MatchString(name)
		}
	}
	return result
}

// excludedDir reports whether a directory is excluded. The pattern is tried
// against the bare name, the full path, and the root-relative path when the
// directory is nested below the root.
func (c *compiledRequest) excludedDir(name, fullPath, root string) bool {
	if c.excludeDirs == nil {
		return false
	}
	if c.excludeDirs.MatchString(name) || c.excludeDirs.MatchString(fullPath) {
		return true
	}
	rel, err := filepath.Rel(root, fullPath)
	if err != nil || rel == name {
		return false
	}
	if strings.ContainsRune(rel, filepath.Separator) {
		return c.excludeDirs.MatchString(rel)
	}
	return false
}

// admitsSize applies the size filter, if any.
func (c *compiledRequest) admitsSize(size int64) bool {
	f := c.req.SizeFilter
	if f == nil {
		return true
	}
	switch f.Cmp {
	case SizeLess:
		return size < f.Bytes
	case SizeEqual:
		return size == f.Bytes
	case SizeGreater:
		return size > f.Bytes
	default:
		return true
	}
}

// admitsDate applies the modification time filter, if any.
func (c *compiledRequest) admitsDate(mod time.Time) bool {
	f := c.req.DateFilter
	switch f.Kind {
	case DateNewer:
		return !mod.Before(f.T1)
	case DateOlder:
		return !mod.After(f.T1)
	case DateBetween:
		return !mod.Before(f.T1) && !mod.After(f.T2)
	default:
		return true
	}
}
