package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DeprecatedRoute marks an endpoint as deprecated with a sunset date.
type DeprecatedRoute struct {
	Path        string    // route pattern, ":name" segments match any value
	SunsetDate  time.Time // date when the endpoint will be removed
	Alternative string    // recommended replacement (optional)
}

// legacyRoutes are the PostgREST-style paths older editor builds still call.
var legacyRoutes = []DeprecatedRoute{
	{Path: "/rest/v1/rpc/upsert_shotengai", SunsetDate: time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC), Alternative: "/v1/rpc/upsert_shotengai"},
	{Path: "/rest/v1/rpc/update_shotengai_geom", SunsetDate: time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC), Alternative: "/v1/rpc/update_shotengai_geom"},
	{Path: "/rest/v1/shotengai", SunsetDate: time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC), Alternative: "/v1/features"},
}

// DeprecationMiddleware adds Deprecation, Sunset, Link and Warning headers to
// deprecated endpoints.
func DeprecationMiddleware(deprecated []DeprecatedRoute) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, d := range deprecated {
			if !matchPattern(c.Path(), d.Path) {
				continue
			}
			// RFC 8594
			c.Set("Deprecation", "true")
			c.Set("Sunset", d.SunsetDate.UTC().Format(time.RFC1123))
			if d.Alternative != "" {
				c.Set("Link", fmt.Sprintf(`<%s>; rel="successor-version"`, d.Alternative))
			}
			days := time.Until(d.SunsetDate).Hours() / 24
			c.Set("Warning", fmt.Sprintf(`299 - "Deprecated API, will sunset in %.0f days"`, days))
			break
		}
		return c.Next()
	}
}

// matchPattern matches a path against a pattern where ":name" segments
// match any single non-empty segment, e.g. "/v1/features/:id".
func matchPattern(path, pattern string) bool {
	if path == pattern {
		return true
	}
	ps := strings.Split(strings.Trim(path, "/"), "/")
	qs := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(ps) != len(qs) {
		return false
	}
	for i := range qs {
		if strings.HasPrefix(qs[i], ":") {
			if ps[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != qs[i] {
			return false
		}
	}
	return true
}
