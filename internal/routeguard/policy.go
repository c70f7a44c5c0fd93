// Package routeguard holds the page-level navigation policy shared with the
// frontend. Each route lists the roles that are redirected away from it; the
// guard is evaluated against a role list the caller already has and never
// touches storage.
package routeguard

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maulvi-zm/trackure/internal/auth"
)

//go:embed default.yaml
var defaultPolicy []byte

const (
	defaultLoginPath      = "/login"
	defaultNotAllowedPath = "/not-allowed"
)

// Decision reasons.
const (
	ReasonAllowed         = "allowed"
	ReasonUnauthenticated = "unauthenticated"
	ReasonNoRoles         = "no_roles"
	ReasonExcludedRole    = "excluded_role"
)

// Rule redirects holders of Role to RedirectTo.
type Rule struct {
	Role       auth.RoleName `yaml:"role" json:"role"`
	RedirectTo string        `yaml:"redirect_to" json:"redirectTo"`
}

// Route is a navigable page and its ordered exclusion rules.
type Route struct {
	Path    string `yaml:"path" json:"path"`
	Exclude []Rule `yaml:"exclude" json:"exclude"`
}

type Policy struct {
	Login      string  `yaml:"login" json:"login"`
	NotAllowed string  `yaml:"not_allowed" json:"notAllowed"`
	Routes     []Route `yaml:"routes" json:"routes"`
}

// Decision is the outcome of evaluating a navigation.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	RedirectTo string        `json:"redirectTo,omitempty"`
	Reason     string        `json:"reason"`
	Role       auth.RoleName `json:"role,omitempty"`
}

// Default returns the embedded policy.
func Default() (*Policy, error) {
	return Parse(defaultPolicy)
}

// LoadFile reads a policy from a YAML file.
func LoadFile(name string) (*Policy, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read route policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML policy. Role names are normalized.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode route policy: %w", err)
	}
	if p.Login == "" {
		p.Login = defaultLoginPath
	}
	if p.NotAllowed == "" {
		p.NotAllowed = defaultNotAllowedPath
	}
	for i := range p.Routes {
		p.Routes[i].Path = cleanPath(p.Routes[i].Path)
		for j := range p.Routes[i].Exclude {
			r := &p.Routes[i].Exclude[j]
			r.Role = auth.NormalizeRole(string(r.Role))
			r.RedirectTo = strings.TrimSpace(r.RedirectTo)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate rejects duplicate routes, unknown roles, empty redirects and rules
// that redirect a page to itself.
func (p *Policy) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(p.Routes))
	for _, rt := range p.Routes {
		if rt.Path == "" || rt.Path == "." {
			errs = append(errs, errors.New("route with empty path"))
			continue
		}
		if _, dup := seen[rt.Path]; dup {
			errs = append(errs, fmt.Errorf("route %s: declared twice", rt.Path))
		}
		seen[rt.Path] = struct{}{}
		roles := make(map[auth.RoleName]struct{}, len(rt.Exclude))
		for _, r := range rt.Exclude {
			if !r.Role.IsBuiltin() {
				errs = append(errs, fmt.Errorf("route %s: unknown role %q", rt.Path, r.Role))
			}
			if _, dup := roles[r.Role]; dup {
				errs = append(errs, fmt.Errorf("route %s: role %s listed twice", rt.Path, r.Role))
			}
			roles[r.Role] = struct{}{}
			if r.RedirectTo == "" {
				errs = append(errs, fmt.Errorf("route %s: role %s has no redirect", rt.Path, r.Role))
			} else if cleanPath(r.RedirectTo) == rt.Path {
				errs = append(errs, fmt.Errorf("route %s: role %s redirects to itself", rt.Path, r.Role))
			}
		}
	}
	return errors.Join(errs...)
}

// Evaluate decides whether a user may open target. Unauthenticated users go to
// the login page, users without roles to the not-allowed page. Otherwise the
// most specific matching route's rules run in order and the first role the
// user holds wins. Paths no route covers are allowed.
func (p *Policy) Evaluate(target string, authenticated bool, roles auth.RoleSet) Decision {
	if !authenticated {
		return Decision{RedirectTo: p.Login, Reason: ReasonUnauthenticated}
	}
	if len(roles) == 0 {
		return Decision{RedirectTo: p.NotAllowed, Reason: ReasonNoRoles}
	}
	rt, ok := p.match(cleanPath(target))
	if !ok {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	for _, r := range rt.Exclude {
		if roles.Has(r.Role) {
			return Decision{RedirectTo: r.RedirectTo, Reason: ReasonExcludedRole, Role: r.Role}
		}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func (p *Policy) match(target string) (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, rt := range p.Routes {
		if target != rt.Path && !strings.HasPrefix(target, strings.TrimSuffix(rt.Path, "/")+"/") {
			continue
		}
		if !found || len(rt.Path) > len(best.Path) {
			best, found = rt, true
		}
	}
	return best, found
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Clean(p)
}
