package vhost

import (
	"net"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// Registry answers which domain serves a hostname. It is immutable: reloading builds a new registry.
type Registry struct {
	domains []*Domain
	byHost  map[string]*Domain
	byName  map[string]*Domain
	def     *Domain
}

type rawCORS struct {
	Enable           bool     `mapstructure:"enable"`
	AllowOrigin      string   `mapstructure:"allowOrigin"`
	AllowMethods     []string `mapstructure:"allowMethods"`
	AllowHeaders     []string `mapstructure:"allowHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
}

type rawDomain struct {
	Root        string   `mapstructure:"root"`
	Index       string   `mapstructure:"index"`
	NotFound    string   `mapstructure:"notFound"`
	ServerError string   `mapstructure:"serverError"`
	Ignore404   bool     `mapstructure:"ignore404"`
	CORS        *rawCORS `mapstructure:"cors"`
}

// New builds a registry from loosely typed domain entries keyed by domain name, as they come out of a
// config file. defaultName must name one of the entries.
func New(entries map[string]map[string]any, defaultName string) (*Registry, error) {
	names := lo.Keys(entries)
	sort.Strings(names)

	domains := make([]Domain, 0, len(names))
	for _, name := range names {
		d, err := decodeDomain(name, entries[name])
		if err != nil {
			return nil, err
		}

		domains = append(domains, d)
	}

	return NewFromDomains(domains, defaultName)
}

// NewFromDomains builds a registry from typed domains. Roots are normalized and empty document names
// receive their defaults.
func NewFromDomains(domains []Domain, defaultName string) (*Registry, error) {
	reg := &Registry{
		byHost: make(map[string]*Domain),
		byName: make(map[string]*Domain, len(domains)),
	}

	for i := range domains {
		d := domains[i]
		if d.Name == "" {
			return nil, configErr("", "", "domain without a name")
		}
		if _, dup := reg.byName[d.Name]; dup {
			return nil, configErr(d.Name, "", "declared twice")
		}
		if len(d.Hostnames) < 1 {
			return nil, configErr(d.Name, "hostnames", `must provide either "hostname" or "hostnames" field`)
		}
		if d.Root == "" {
			return nil, configErr(d.Name, "root", "must not be empty")
		}

		d.Hostnames = lo.Uniq(lo.Map(d.Hostnames, func(h string, _ int) string { return strings.ToLower(h) }))
		d.applyDefaults()

		for _, h := range d.Hostnames {
			if other, taken := reg.byHost[h]; taken {
				return nil, configErr(d.Name, "hostnames", "hostname "+h+" is already claimed by "+other.Name)
			}
			reg.byHost[h] = &d
		}

		reg.byName[d.Name] = &d
		reg.domains = append(reg.domains, &d)
	}

	sort.Slice(reg.domains, func(i, j int) bool { return reg.domains[i].Name < reg.domains[j].Name })

	def, ok := reg.byName[defaultName]
	if !ok {
		return nil, configErr("", "", "default domain "+defaultName+" is not declared")
	}
	reg.def = def

	return reg, nil
}

func decodeDomain(name string, entry map[string]any) (Domain, error) {
	hostnames, err := decodeHostnames(name, entry)
	if err != nil {
		return Domain{}, err
	}

	if _, ok := entry["root"]; !ok {
		return Domain{}, configErr(name, "root", "is required")
	}

	if cors, ok := entry["cors"]; ok && cors != nil {
		if _, isMap := cors.(map[string]any); !isMap {
			return Domain{}, configErr(name, "cors", "must be a map")
		}
	}

	var raw rawDomain
	if err := mapstructure.Decode(entry, &raw); err != nil {
		return Domain{}, decodeErr(name, err)
	}

	d := Domain{
		Name:        name,
		Hostnames:   hostnames,
		Root:        raw.Root,
		Index:       raw.Index,
		NotFound:    raw.NotFound,
		ServerError: raw.ServerError,
		Ignore404:   raw.Ignore404,
	}

	if raw.CORS != nil && raw.CORS.Enable {
		d.CORS = CORS{
			Enabled:          true,
			AllowOrigin:      raw.CORS.AllowOrigin,
			AllowMethods:     raw.CORS.AllowMethods,
			AllowHeaders:     raw.CORS.AllowHeaders,
			AllowCredentials: raw.CORS.AllowCredentials,
		}
	}

	return d, nil
}

func decodeHostnames(name string, entry map[string]any) ([]string, error) {
	if v, ok := entry["hostname"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, configErr(name, "hostname", "must contain a string")
		}

		return []string{s}, nil
	}

	v, ok := entry["hostnames"]
	if !ok {
		return nil, configErr(name, "", `must provide either "hostname" or "hostnames" field`)
	}

	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, isStr := item.(string)
			if !isStr {
				return nil, configErr(name, "hostnames", "items must be strings")
			}
			out = append(out, s)
		}

		return out, nil
	default:
		return nil, configErr(name, "hostnames", "must contain a list")
	}
}

var decodeFieldRe = regexp.MustCompile(`^'([^']*)'`)

// decodeErr turns the first mapstructure error into a configuration error for the field it names.
func decodeErr(name string, err error) error {
	var merr *mapstructure.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		field := ""
		if m := decodeFieldRe.FindStringSubmatch(merr.Errors[0]); m != nil {
			field = m[1]
		}

		return configErr(name, field, merr.Errors[0])
	}

	return configErr(name, "", err.Error())
}

// HostnameOf lower-cases a Host header value and strips the port.
func HostnameOf(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// ByHostname returns the domain claiming the exact hostname.
func (r *Registry) ByHostname(hostname string) (*Domain, bool) {
	d, ok := r.byHost[strings.ToLower(hostname)]
	return d, ok
}

// ByHostHeader returns the domain for a raw Host header, which may carry a port.
func (r *Registry) ByHostHeader(host string) (*Domain, bool) {
	return r.ByHostname(HostnameOf(host))
}

// ByHostnameOrDefault never returns nil.
func (r *Registry) ByHostnameOrDefault(hostname string) *Domain {
	if d, ok := r.ByHostname(hostname); ok {
		return d
	}

	return r.def
}

// ByHostHeaderOrDefault never returns nil.
func (r *Registry) ByHostHeaderOrDefault(host string) *Domain {
	if d, ok := r.ByHostHeader(host); ok {
		return d
	}

	return r.def
}

// ByName returns the domain declared under name.
func (r *Registry) ByName(name string) (*Domain, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// ByNameOrDefault returns the domain declared under name, or the default domain.
func (r *Registry) ByNameOrDefault(name string) *Domain {
	if d, ok := r.byName[name]; ok {
		return d
	}

	return r.def
}

// Exists reports whether any domain claims the hostname.
func (r *Registry) Exists(hostname string) bool {
	_, ok := r.ByHostname(hostname)
	return ok
}

// Default returns the fallback domain for unknown hosts.
func (r *Registry) Default() *Domain { return r.def }

// All returns the domains ordered by name. The slice is a copy.
func (r *Registry) All() []*Domain {
	return append([]*Domain(nil), r.domains...)
}
