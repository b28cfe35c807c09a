package refparser

import (
	"fmt"
	"strings"
)

const githubHost = "github.com"

// RepoRef represents a parsed source repository identifier.
//
// Accepted forms:
//
//	<owner>/<name>
//	github.com/<owner>/<name>
//	https://github.com/<owner>/<name>[.git]
type RepoRef struct {
	Owner string
	Name  string
	Raw   string
}

// String returns the canonical owner/name form.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Parse parses a repository identifier into its owner and name.
func Parse(ref string) (RepoRef, error) {
	body := strings.TrimSpace(ref)
	body = strings.TrimPrefix(body, "https://")
	body = strings.TrimPrefix(body, githubHost+"/")
	body = strings.TrimSuffix(body, "/")
	body = strings.TrimSuffix(body, ".git")

	parts := strings.Split(body, "/")
	if len(parts) != 2 {
		return RepoRef{}, fmt.Errorf("invalid repository %q: expected <owner>/<name>", ref)
	}
	for _, p := range parts {
		if !validSegment(p) {
			return RepoRef{}, fmt.Errorf("invalid repository %q: segment %q must be non-empty and contain only letters, digits, '-', '_' or '.'", ref, p)
		}
	}
	return RepoRef{Owner: parts[0], Name: parts[1], Raw: ref}, nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
