package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasHiddenSegments reports whether any segment names a dotfile such as
// ".env" or ".git".
func HasHiddenSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if len(seg) > 1 && seg[0] == '.' && seg != ".." {
			return true
		}
	}
	return false
}

// Unsafe reports paths that must never be mapped onto a filesystem: NUL
// bytes, backslashes, and dot segments.
func Unsafe(p string) bool {
	return strings.ContainsAny(p, "\x00\\") || HasDotSegments(p)
}
