// Package safepath maps URLs and user-supplied names onto the repository
// checkout without letting them escape it.
package safepath

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path escapes its base.
var ErrPathTraversal = errors.New("safepath: path traversal detected")

// ErrOutsideBase is returned when a URL is not under the configured base URL.
var ErrOutsideBase = errors.New("safepath: URL outside base")

// Join validates that joining base and rel does not escape base and
// returns the cleaned path.
func Join(base, rel string) (string, error) {
	for _, seg := range strings.FieldsFunc(rel, isSep) {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, filepath.Clean("/"+filepath.FromSlash(rel)))
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// Rel returns p relative to base in slash form. p must lie under base.
func Rel(base, p string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("safepath: rel: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return filepath.ToSlash(rel), nil
}

// FromURL maps rawURL, which must start with baseURL, to a file under root.
// Query and fragment are dropped.
func FromURL(baseURL, root, rawURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(rawURL, base) {
		return "", ErrOutsideBase
	}
	rest := strings.TrimPrefix(rawURL, base)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("safepath: %w", err)
	}
	return Join(root, unescaped)
}

// ValidateIdentifier rejects names unsuitable as file names or ledger
// labels. Allows alphanumerics, underscore, hyphen and dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("safepath: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("safepath: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("safepath: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("safepath: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isSep(r rune) bool { return r == '/' || r == '\\' }

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
