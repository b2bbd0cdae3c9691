package middleware

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/identity"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
	"github.com/pmuprofit/coursegate/internal/pkg/routes"
	"github.com/pmuprofit/coursegate/internal/pkg/usercontext"
)

// Access decisions reported to the DecisionRecorder
const (
	DecisionStatic              = "static"
	DecisionPublic              = "public"
	DecisionAllow               = "allow"
	DecisionLoginRedirect       = "login_redirect"
	DecisionCheckoutRedirect    = "checkout_redirect"
	DecisionPreCheckoutRedirect = "precheckout_redirect"
	DecisionDashboardRedirect   = "dashboard_redirect"
	DecisionCanonicalRedirect   = "canonical_redirect"
	DecisionFailClosed          = "fail_closed"
)

const sessionCookieMaxAge = 30 * 24 * 60 * 60

// PrincipalResolver resolves the principal of a request.
type PrincipalResolver interface {
	Resolve(ctx context.Context, req identity.Request) identity.Resolution
}

type DecisionRecorder interface {
	ObserveAccessDecision(decision string)
}

type nopDecisions struct{}

func (nopDecisions) ObserveAccessDecision(string) {}

type AccessGateConfig struct {
	Classifier *routes.Classifier
	Resolver   PrincipalResolver
	Checker    entitlements.Checker
	Recorder   DecisionRecorder
	// CanonicalHost enables the permanent redirect of other hosts when set.
	CanonicalHost string
	SecureCookies bool
}

// AccessGate decides for every page request whether to pass it on, send the
// visitor to log in, or send them to buy the course.
type AccessGate struct {
	classifier    *routes.Classifier
	resolver      PrincipalResolver
	checker       entitlements.Checker
	recorder      DecisionRecorder
	canonicalHost string
	secureCookies bool
}

func NewAccessGate(cfg AccessGateConfig) *AccessGate {
	g := &AccessGate{
		classifier:    cfg.Classifier,
		resolver:      cfg.Resolver,
		checker:       cfg.Checker,
		recorder:      cfg.Recorder,
		canonicalHost: strings.ToLower(strings.TrimSpace(cfg.CanonicalHost)),
		secureCookies: cfg.SecureCookies,
	}
	if g.classifier == nil {
		g.classifier = routes.NewClassifier(routes.DefaultConfig())
	}
	if g.recorder == nil {
		g.recorder = nopDecisions{}
	}
	return g
}

func (g *AccessGate) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		stripIdentityHeaders(c)

		path := c.Path()
		class := g.classifier.Classify(path)
		if class == routes.Static {
			g.recorder.ObserveAccessDecision(DecisionStatic)
			return c.Next()
		}

		if target, ok := g.canonicalTarget(c); ok {
			log.Infof("[gate] redirecting %s to canonical host", c.Hostname())
			g.recorder.ObserveAccessDecision(DecisionCanonicalRedirect)
			return c.Redirect(target, fiber.StatusMovedPermanently)
		}

		if routes.IsCheckoutSuccess(path) && (c.Query(constants.QuerySessionID) != "" || c.Query(constants.QueryStateToken) != "") {
			return g.passCheckoutSuccess(c)
		}
		if routes.IsCheckoutAddon(path) {
			if id, ok := recoveryPrincipal(c); ok {
				log.Infof("[gate] checkout add-on reached with recovery parameters")
				attachPrincipal(c, identity.Resolution{PrincipalID: id, Source: identity.SourceRecovery})
				g.recorder.ObserveAccessDecision(DecisionAllow)
				return c.Next()
			}
		}

		resolvesIdentity := class != routes.Public || routes.IsAuthPage(path) || routes.IsPreCheckout(path)
		if !resolvesIdentity {
			g.recorder.ObserveAccessDecision(DecisionPublic)
			return c.Next()
		}

		res := g.resolver.Resolve(c.UserContext(), identity.FromFiber(c))
		if res.Refreshed != nil {
			writeSessionCookies(c, res.Refreshed, g.secureCookies)
		}

		if !res.Resolved() {
			return g.unauthenticated(c, class, path)
		}

		if routes.IsAuthPage(path) {
			g.recorder.ObserveAccessDecision(DecisionDashboardRedirect)
			return c.Redirect(constants.DashboardRoute, fiber.StatusFound)
		}
		if routes.IsPreCheckout(path) {
			g.recorder.ObserveAccessDecision(DecisionCheckoutRedirect)
			return c.Redirect(withProducts(constants.CheckoutRoute, c), fiber.StatusFound)
		}

		if class == routes.Protected {
			ok, err := g.checker.HasProductAccess(c.UserContext(), res.PrincipalID, products.BaseProductID)
			if err != nil {
				log.Errorf("[gate] entitlement check failed for user %s: %v", res.PrincipalID, err)
				g.recorder.ObserveAccessDecision(DecisionFailClosed)
				return c.Redirect(constants.CheckoutRoute, fiber.StatusFound)
			}
			if !ok {
				log.Infof("[gate] user %s has no active entitlement, redirecting to checkout", res.PrincipalID)
				g.recorder.ObserveAccessDecision(DecisionCheckoutRedirect)
				return c.Redirect(constants.CheckoutRoute, fiber.StatusFound)
			}
		}

		attachPrincipal(c, res)
		g.recorder.ObserveAccessDecision(DecisionAllow)
		return c.Next()
	}
}

func (g *AccessGate) unauthenticated(c *fiber.Ctx, class routes.Class, path string) error {
	switch class {
	case routes.Protected:
		g.recorder.ObserveAccessDecision(DecisionLoginRedirect)
		return c.Redirect(loginURL(path), fiber.StatusFound)
	case routes.AuthOnly:
		if routes.IsCheckoutPath(path) {
			g.recorder.ObserveAccessDecision(DecisionPreCheckoutRedirect)
			return c.Redirect(withProducts(constants.PreCheckoutRoute, c), fiber.StatusFound)
		}
		g.recorder.ObserveAccessDecision(DecisionLoginRedirect)
		return c.Redirect(loginURL(path), fiber.StatusFound)
	default:
		g.recorder.ObserveAccessDecision(DecisionPublic)
		return c.Next()
	}
}

// passCheckoutSuccess lets the success page through after the payment
// redirect, carrying whatever identity the URL provides downstream.
func (g *AccessGate) passCheckoutSuccess(c *fiber.Ctx) error {
	req := identity.FromFiber(c)
	if sessionID := c.Query(constants.QuerySessionID); sessionID != "" {
		c.Request().Header.Set(constants.HeaderSessionID, sessionID)
	}
	if id, ok := identity.StatePrincipal(req); ok {
		c.Request().Header.Set(constants.HeaderStateToken, c.Query(constants.QueryStateToken))
		attachPrincipal(c, identity.Resolution{PrincipalID: id, Source: identity.SourceStateToken})
	} else if id, ok := identity.RecoveryPrincipal(req); ok {
		attachPrincipal(c, identity.Resolution{PrincipalID: id, Source: identity.SourceRecovery})
	}
	g.recorder.ObserveAccessDecision(DecisionPublic)
	return c.Next()
}

func (g *AccessGate) canonicalTarget(c *fiber.Ctx) (string, bool) {
	if g.canonicalHost == "" {
		return "", false
	}
	host := strings.ToLower(c.Hostname())
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == g.canonicalHost || host == "localhost" || host == "127.0.0.1" {
		return "", false
	}
	return c.Protocol() + "://" + g.canonicalHost + c.OriginalURL(), true
}

func recoveryPrincipal(c *fiber.Ctx) (string, bool) {
	req := identity.FromFiber(c)
	if id, ok := identity.StatePrincipal(req); ok {
		c.Request().Header.Set(constants.HeaderStateToken, c.Query(constants.QueryStateToken))
		return id, true
	}
	if c.Query(constants.QueryRecoveryUserID) == "" {
		return "", false
	}
	return identity.RecoveryPrincipal(req)
}

// stripIdentityHeaders drops identity headers supplied by the client. Only
// the gate sets them.
func stripIdentityHeaders(c *fiber.Ctx) {
	c.Request().Header.Del(constants.HeaderUserID)
	c.Request().Header.Del(constants.HeaderSessionID)
	c.Request().Header.Del(constants.HeaderStateToken)
}

func attachPrincipal(c *fiber.Ctx, res identity.Resolution) {
	c.Request().Header.Set(constants.HeaderUserID, res.PrincipalID)
	usercontext.Set(c, usercontext.UserContext{
		UserID:     res.PrincipalID,
		IsLoggedIn: true,
		Source:     string(res.Source),
	})
}

func writeSessionCookies(c *fiber.Ctx, s *identity.Session, secure bool) {
	expires := time.Now().Add(sessionCookieMaxAge * time.Second)
	set := func(name, value string, httpOnly bool) {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   sessionCookieMaxAge,
			Expires:  expires,
			Secure:   secure,
			HTTPOnly: httpOnly,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	set(constants.CookieAccessToken, s.AccessToken, true)
	if s.RefreshToken != "" {
		set(constants.CookieRefreshToken, s.RefreshToken, true)
	}
	set(constants.CookieAuthStatus, constants.AuthStatusAuthenticated, false)
}

func loginURL(returnPath string) string {
	return constants.LoginRoute + "?" + constants.QueryRedirect + "=" + url.QueryEscape(returnPath)
}

func withProducts(target string, c *fiber.Ctx) string {
	if p := c.Query(constants.QueryProducts); p != "" {
		return target + "?" + constants.QueryProducts + "=" + url.QueryEscape(p)
	}
	return target
}
