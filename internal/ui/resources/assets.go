// Package resources serves the console's static assets.
package resources

import "path"

// Prefix is the URL prefix static assets are mounted under.
const Prefix = "/static/"

// StaticPath returns the URL path for a static asset.
func StaticPath(name string) string {
	return path.Join(Prefix, name)
}
