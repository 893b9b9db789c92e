// Package domainmatch decides whether an agent may read or write a
// given file path, based on the glob patterns in its domain.
//
// Pattern syntax: `**` matches any sequence of characters including
// path separators, `*` matches any sequence excluding separators, `?`
// matches exactly one character, and everything else matches literally.
// Matching is anchored: the whole path must match, never a prefix.
package domainmatch

import "roundtable/internal/domain"

// Match reports whether path matches pattern.
func Match(path, pattern string) bool {
	return match(pattern, path)
}

func match(pat, s string) bool {
	for len(pat) > 0 {
		switch {
		case len(pat) >= 2 && pat[0] == '*' && pat[1] == '*':
			rest := pat[2:]
			// Consume any run of characters, separators included.
			for i := 0; i <= len(s); i++ {
				if match(rest, s[i:]) {
					return true
				}
			}
			return false
		case pat[0] == '*':
			rest := pat[1:]
			if match(rest, s) {
				return true
			}
			// Extend the star one character at a time, stopping at
			// the first separator.
			for i := 0; i < len(s) && s[i] != '/'; i++ {
				if match(rest, s[i+1:]) {
					return true
				}
			}
			return false
		case pat[0] == '?':
			if len(s) == 0 {
				return false
			}
			pat, s = pat[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0
}

// CanWrite reports whether path matches at least one write pattern of
// the agent's domain. When the same literal pattern appears in several
// agents' domains the configuration is invalid, but matching still
// behaves deterministically here.
func CanWrite(d domain.AgentDomain, path string) bool {
	for _, pat := range d.WritePaths {
		if Match(path, pat) {
			return true
		}
	}
	return false
}

// CanRead reports whether the agent may read path. An absent or empty
// read-path list means the agent reads everything.
func CanRead(d domain.AgentDomain, path string) bool {
	if len(d.ReadPaths) == 0 {
		return true
	}
	for _, pat := range d.ReadPaths {
		if Match(path, pat) {
			return true
		}
	}
	return false
}
