// Package config reads the virtual host configuration file and keeps a [vhost.Store] in sync with it.
//
// The file is YAML or JSON:
//
//	server:
//	  defaultDomain: main
//	  domains:
//	    main:
//	      hostnames: [example.com, www.example.com]
//	      root: /srv/www/main
//	      notFound: 404.html
//	      cors:
//	        enable: true
//	        allowOrigin: request-origin
package config

import (
	"encoding/json"
	"os"

	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Node paths of the virtual host settings.
const (
	DefaultDomainPath = "server.defaultDomain"
	DomainsPath       = "server.domains"
)

// File is the parsed virtual host section of the configuration.
type File struct {
	DefaultDomain string
	Domains       map[string]map[string]any
}

// Parse reads a YAML or JSON document.
func Parse(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	js, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "normalize config")
	}

	domains := gjson.GetBytes(js, DomainsPath)
	if !domains.IsObject() {
		return nil, errors.Newf("config: %s must be a map of domain entries", DomainsPath)
	}

	f := &File{
		DefaultDomain: gjson.GetBytes(js, DefaultDomainPath).String(),
		Domains:       map[string]map[string]any{},
	}

	var entryErr error
	domains.ForEach(func(name, entry gjson.Result) bool {
		m, ok := entry.Value().(map[string]any)
		if !ok {
			entryErr = errors.Newf("config: domain %q must be a map", name.String())
			return false
		}

		f.Domains[name.String()] = m
		return true
	})

	if entryErr != nil {
		return nil, entryErr
	}

	return f, nil
}

// Registry builds the domain registry of the file.
func (f *File) Registry() (*vhost.Registry, error) {
	return vhost.New(f.Domains, f.DefaultDomain)
}

// Load reads the file at path and builds its registry.
func Load(path string) (*vhost.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return f.Registry()
}
