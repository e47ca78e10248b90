package di

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

const plainTextPasses = 4

// newPlainTextSanitizer strips markup from free text and returns it unescaped for storage.
// Output encoding belongs to whoever renders the text.
func newPlainTextSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(v string) string {
		// Entity-encoded tags surface after unescaping, so repeat until stable.
		for i := 0; i < plainTextPasses; i++ {
			next := html.UnescapeString(policy.Sanitize(v))
			if next == v {
				break
			}
			v = next
		}
		return v
	}
}
