// Package repourl normalizes pasted GitHub repository URLs.
package repourl

import (
	"errors"
	"strings"
)

// ErrInvalid is returned when a URL does not name an owner and repository.
var ErrInvalid = errors.New("invalid repository URL")

// Ref identifies a repository and optionally a branch.
type Ref struct {
	Owner  string
	Repo   string
	Branch string
}

// Key returns a stable cache key for the reference.
func (r Ref) Key() string {
	return r.Owner + "/" + r.Repo + "/" + r.Branch
}

// Parse extracts owner, repo, and branch from a GitHub URL. Accepted forms:
// https://github.com/owner/repo, github.com/owner/repo,
// github.com/owner/repo/tree/branch.
func Parse(url string) (Ref, error) {
	clean := strings.TrimSpace(url)
	if clean == "" {
		return Ref{}, ErrInvalid
	}

	clean = strings.TrimPrefix(clean, "https://")
	clean = strings.TrimPrefix(clean, "http://")
	clean = strings.TrimPrefix(clean, "www.")
	clean = strings.TrimPrefix(clean, "github.com/")
	clean = strings.Trim(clean, "/")

	parts := strings.Split(clean, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, ErrInvalid
	}

	ref := Ref{
		Owner: parts[0],
		Repo:  strings.TrimSuffix(parts[1], ".git"),
	}
	for i := 2; i < len(parts)-1; i++ {
		if parts[i] == "tree" {
			ref.Branch = parts[i+1]
			break
		}
	}
	return ref, nil
}

// Valid reports whether the URL parses to an owner/repo pair.
func Valid(url string) bool {
	_, err := Parse(url)
	return err == nil
}
