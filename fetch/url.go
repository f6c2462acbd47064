package fetch

import (
	"fmt"
	"strings"
)

// Vars carries the substitution values for a manifest path template.
type Vars struct {
	Target  string
	Tag     string
	Frame   int
	Segment int
	// Padding is the zero-padded width of [frame] and [segment]
	// substitutions. Zero means no padding.
	Padding int
}

// ResolveURL expands a manifest path template against a base URL. Recognized
// placeholders: [target], [tag], [frame], [segment]. A template that is
// already absolute (http or https scheme) ignores base.
func ResolveURL(base, template string, vars Vars) string {
	num := func(n int) string {
		if vars.Padding > 0 {
			return fmt.Sprintf("%0*d", vars.Padding, n)
		}
		return fmt.Sprintf("%d", n)
	}

	path := template
	path = strings.ReplaceAll(path, "[target]", vars.Target)
	path = strings.ReplaceAll(path, "[tag]", vars.Tag)
	path = strings.ReplaceAll(path, "[frame]", num(vars.Frame))
	path = strings.ReplaceAll(path, "[segment]", num(vars.Segment))

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
