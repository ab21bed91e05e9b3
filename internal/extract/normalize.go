// Package extract turns listing and project pages into project links and
// records using ordered selector fallback chains.
package extract

import "strings"

// Site-specific defaults.
const (
	DefaultOrigin            = "https://mostaql.com"
	DefaultProjectPathMarker = "/project/"
)

// NormalizeHref makes href absolute against origin. Protocol-relative hrefs
// get https, root-relative ones get the origin, anything else not starting
// with "http" gets origin plus a slash. Absolute hrefs pass through.
func NormalizeHref(origin, href string) string {
	href = strings.TrimSpace(href)
	origin = strings.TrimRight(origin, "/")
	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return origin + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return origin + "/" + href
	}
}
