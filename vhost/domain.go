// Package vhost holds the virtual host configuration: every domain the server answers for, indexed by
// the hostnames it claims.
package vhost

import (
	"path/filepath"
	"strings"
)

// RequestOrigin is the allowOrigin value that echoes the request's Origin header back.
const RequestOrigin = "request-origin"

// Defaults applied to domain entries that leave these fields empty.
const (
	DefaultIndex       = "index.html"
	DefaultNotFound    = "404.html"
	DefaultServerError = "500.html"
)

// CORS settings of a domain. Nothing is sent unless Enabled.
type CORS struct {
	Enabled          bool
	AllowOrigin      string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

// Domain is one virtual host. It is never mutated after the registry holding it was built.
type Domain struct {
	Name      string
	Hostnames []string

	// Root always ends with a slash so candidate paths can be formed by concatenation.
	Root        string
	Index       string
	NotFound    string
	ServerError string
	Ignore404   bool
	CORS        CORS
}

// Path joins a document name onto the domain root.
func (d *Domain) Path(name string) string {
	return d.Root + strings.TrimPrefix(name, "/")
}

func normalizeRoot(root string) string {
	root = filepath.ToSlash(filepath.Clean(root))
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}

	return root
}

func (d *Domain) applyDefaults() {
	d.Root = normalizeRoot(d.Root)
	if d.Index == "" {
		d.Index = DefaultIndex
	}
	if d.NotFound == "" {
		d.NotFound = DefaultNotFound
	}
	if d.ServerError == "" {
		d.ServerError = DefaultServerError
	}
}
