// Package routes classifies request paths for the access gate.
package routes

import (
	"path"
	"strings"

	"github.com/pmuprofit/coursegate/internal/pkg/constants"
)

// Class is the authorization category of a path.
type Class int

const (
	Static Class = iota
	Public
	AuthOnly
	Protected
)

func (c Class) String() string {
	switch c {
	case Static:
		return "static"
	case Public:
		return "public"
	case AuthOnly:
		return "auth_only"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// Config holds the route lists. Prefixes match whole path segments.
type Config struct {
	StaticPrefixes []string
	DashboardRoot  string
	Public         []string
	AuthOnly       []string
	Protected      []string
}

func DefaultConfig() Config {
	return Config{
		StaticPrefixes: []string{"/_next", "/api", "/static", "/public", "/favicon.ico", "/docs", "/metrics", "/monitor"},
		DashboardRoot:  constants.DashboardRoute,
		Public: []string{
			constants.PublicRoute,
			constants.LoginRoute,
			constants.SignupRoute,
			"/register",
			constants.PreCheckoutRoute,
			constants.CheckoutSuccessPath,
			"/forgot-password",
			"/auth",
			"/about",
			"/contact",
			"/privacy",
			"/terms",
			"/cookies",
			"/account-deleted",
		},
		AuthOnly:  []string{constants.CheckoutRoute},
		Protected: []string{constants.DashboardRoute},
	}
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify maps a request path to its class. Paths matching no list are
// Protected.
func (c *Classifier) Classify(p string) Class {
	p = Clean(p)
	dashboard := c.cfg.DashboardRoot != "" && matchPrefix(p, c.cfg.DashboardRoot)

	if matchAny(p, c.cfg.StaticPrefixes) || (!dashboard && hasExtension(p)) {
		return Static
	}
	if dashboard {
		return Protected
	}
	if matchAny(p, c.cfg.Public) {
		return Public
	}
	if matchAny(p, c.cfg.AuthOnly) {
		return AuthOnly
	}
	if matchAny(p, c.cfg.Protected) {
		return Protected
	}
	// unmatched
	return Protected
}

// Clean normalizes a request path: leading slash, no dot segments, no
// trailing slash.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func IsAuthPage(p string) bool {
	p = Clean(p)
	return p == constants.LoginRoute || p == constants.SignupRoute
}

func IsPreCheckout(p string) bool {
	return Clean(p) == constants.PreCheckoutRoute
}

func IsCheckoutSuccess(p string) bool {
	return Clean(p) == constants.CheckoutSuccessPath
}

// IsCheckoutPath reports a checkout path other than the success page.
func IsCheckoutPath(p string) bool {
	p = Clean(p)
	return matchPrefix(p, constants.CheckoutRoute) && !matchPrefix(p, constants.CheckoutSuccessPath)
}

func IsCheckoutAddon(p string) bool {
	return matchPrefix(Clean(p), constants.CheckoutAddonPath)
}

func matchAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if matchPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// matchPrefix matches p against prefix on segment boundaries; "/" matches
// only itself.
func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return p == "/"
	}
	prefix = strings.TrimRight(prefix, "/")
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

func hasExtension(p string) bool {
	last := p[strings.LastIndex(p, "/")+1:]
	dot := strings.LastIndex(last, ".")
	return dot > 0 && dot < len(last)-1
}
