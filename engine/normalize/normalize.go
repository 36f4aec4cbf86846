// Package normalize cleans extracted text before it is embedded.
package normalize

import "strings"

// Text collapses every run of whitespace into a single space and trims both
// ends. Text(Text(s)) == Text(s) for every s.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
