package state

import "strings"

// Route classifies the host SPA location. Side effects are route-scoped:
// detail pages get the proposal button, search listings get the rating
// filter, everything else gets nothing.
type Route int

const (
	RouteOther Route = iota
	RouteDetail
	RouteSearch
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteDetail:
		return "detail"
	case RouteSearch:
		return "search"
	default:
		return "other"
	}
}

// Classify maps a URL path to a route. Recomputed on every navigation; the
// classification must never be cached across route changes.
func Classify(path string) Route {
	path = strings.TrimSuffix(path, "/")

	if strings.HasPrefix(path, "/search/projects") {
		return RouteSearch
	}
	if strings.HasSuffix(path, "/details") {
		return RouteDetail
	}
	// Deep project paths like /projects/<skill>/<slug> are detail pages
	// even without the /details suffix.
	if strings.HasPrefix(path, "/projects/") {
		if segs := strings.Split(strings.Trim(path, "/"), "/"); len(segs) > 2 {
			return RouteDetail
		}
	}
	return RouteOther
}
