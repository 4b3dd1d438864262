// Package classify decides whether a filename is an eligible photo based on
// an allow-list of extensions. Classification is pure: no filesystem access,
// no failure mode.
package classify

import (
	"path/filepath"
	"strings"
)

// Classifier matches filenames against a configured extension allow-list,
// case-insensitively.
type Classifier struct {
	extensions map[string]struct{}
}

// New creates a classifier from an extension allow-list. Extensions are
// normalized to lowercase with a leading dot.
func New(extensions []string) *Classifier {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	return &Classifier{extensions: allowed}
}

// IsEligible reports whether the filename's extension is in the allow-list.
func (c *Classifier) IsEligible(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}

	_, ok := c.extensions[ext]
	return ok
}

// Extensions returns the normalized allow-list.
func (c *Classifier) Extensions() []string {
	result := make([]string, 0, len(c.extensions))
	for ext := range c.extensions {
		result = append(result, ext)
	}
	return result
}
