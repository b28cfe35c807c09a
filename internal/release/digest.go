package release

import (
	"regexp"

	"github.com/aspect-build/enclaveproof/internal/trust"
)

// Release notes announce the artifact digest in one of two forms. The
// "EIF hash" form matches case-insensitively; the backtick form only accepts
// lowercase hex.
var digestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)EIF hash: ([a-f0-9]{64})`),
	regexp.MustCompile("Digest: `([a-f0-9]{64})`"),
}

// ExtractDigest returns the expected artifact digest announced in a release
// body. The first pattern that matches anywhere in the body wins, and within
// a pattern the first occurrence wins. The digest keeps its original case.
func ExtractDigest(body string) (string, error) {
	for _, re := range digestPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1], nil
		}
	}
	return "", trust.ErrDigestNotFound
}
