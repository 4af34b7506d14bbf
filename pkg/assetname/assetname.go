// Package assetname resolves content-hashed asset filenames. Build tooling
// embeds an 8-hex-character fingerprint before the extension (app.a1b2c3d4.js)
// that changes across deployments; these helpers extract and strip that
// segment and locate the currently deployed equivalent of a stale name.
package assetname

import (
	"regexp"
	"strings"
)

// hashPattern matches one content-hash segment between name and extension.
const hashPattern = `[0-9a-f]{8}`

// ExtractHash returns the content-hash segment of a URL path, if present.
// The hash, when present, is exactly the second-to-last dot-delimited part
// of the final path segment. Malformed input yields ok=false, never an error.
func ExtractHash(path string) (hash string, ok bool) {
	segments := strings.Split(path, "/")
	parts := strings.Split(segments[len(segments)-1], ".")
	if len(parts) < 3 {
		return "", false
	}
	return parts[len(parts)-2], true
}

// StripHash returns path with its content-hash segment removed. Paths
// without a hash segment are returned unchanged.
func StripHash(path string) string {
	hash, ok := ExtractHash(path)
	if !ok {
		return path
	}
	slash := strings.LastIndex(path, "/")
	dir, file := path[:slash+1], path[slash+1:]
	return dir + strings.Replace(file, "."+hash, "", 1)
}

// FindAlternate searches urls for the currently deployed equivalent of path:
// a URL whose filename is the hash-stripped filename of path with any
// 8-hex-character hash inserted before the extension. Returns the first
// matching URL in configured order.
func FindAlternate(path string, urls []string) (string, bool) {
	file := lastSegment(StripHash(path))
	dot := strings.LastIndex(file, ".")
	if dot < 0 {
		return "", false
	}
	name, ext := file[:dot], file[dot+1:]

	re, err := regexp.Compile(`^` + regexp.QuoteMeta(name) + `\.` + hashPattern + `\.` + regexp.QuoteMeta(ext) + `$`)
	if err != nil {
		return "", false
	}

	for _, u := range urls {
		if re.MatchString(lastSegment(u)) {
			return u, true
		}
	}
	return "", false
}

func lastSegment(path string) string {
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}
