// Package source discovers and extracts articles from the configured news
// outlets.
package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TobiSchelling/newslens/internal/config"
	"github.com/TobiSchelling/newslens/internal/news"
)

// Outlet is a news site with a fixed bias label.
type Outlet struct {
	Domain string
	Name   string
	Bias   news.BiasLabel
	RSS    string
}

// Registry maps URLs to known outlets.
type Registry struct {
	outlets []Outlet
}

// NewRegistry creates a registry over the given outlets.
func NewRegistry(outlets []Outlet) *Registry {
	return &Registry{outlets: outlets}
}

// RegistryFromConfig builds a registry from configured sources.
func RegistryFromConfig(sources []config.Source) (*Registry, error) {
	outlets := make([]Outlet, 0, len(sources))
	for _, s := range sources {
		bias, err := news.ParseBiasLabel(s.Bias)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Domain, err)
		}
		outlets = append(outlets, Outlet{
			Domain: strings.ToLower(s.Domain),
			Name:   s.Name,
			Bias:   bias,
			RSS:    s.RSS,
		})
	}
	return NewRegistry(outlets), nil
}

// Outlets returns all registered outlets.
func (r *Registry) Outlets() []Outlet {
	return r.outlets
}

// Domains returns the registered domains in configuration order.
func (r *Registry) Domains() []string {
	domains := make([]string, len(r.outlets))
	for i, o := range r.outlets {
		domains[i] = o.Domain
	}
	return domains
}

// Lookup finds the outlet serving rawURL. Subdomains of a registered domain
// match it.
func (r *Registry) Lookup(rawURL string) (Outlet, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Outlet{}, false
	}
	return r.LookupHost(u.Hostname())
}

// LookupHost finds the outlet for a host name.
func (r *Registry) LookupHost(host string) (Outlet, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, o := range r.outlets {
		if host == o.Domain || strings.HasSuffix(host, "."+o.Domain) {
			return o, true
		}
	}
	return Outlet{}, false
}
