package constants

// Page routes the access gate redirects to or treats specially
const (
	PublicRoute         = "/"
	LoginRoute          = "/login"
	SignupRoute         = "/signup"
	DashboardRoute      = "/dashboard"
	CheckoutRoute       = "/checkout"
	CheckoutSuccessPath = "/checkout/success"
	CheckoutAddonPath   = "/checkout/addon"
	PreCheckoutRoute    = "/pre-checkout"
)

// Cookies set by the storefront and the identity provider
const (
	CookieAuthStatus   = "auth-status"
	CookieUserID       = "auth_user_id"
	CookieAccessToken  = "sb-access-token"
	CookieRefreshToken = "sb-refresh-token"

	AuthStatusAuthenticated = "authenticated"
)

// Query parameters
const (
	QueryRedirect       = "redirect"
	QueryProducts       = "products"
	QuerySessionID      = "session_id"
	QueryStateToken     = "state"
	QueryRecoveryUserID = "auth_user_id"
	QueryProductID      = "productId"
)

// Headers
const (
	HeaderUserID     = "X-User-Id"
	HeaderSessionID  = "X-Session-Id"
	HeaderStateToken = "X-State-Token"
	HeaderAdminKey   = "X-Admin-Key"
	HeaderStripeSig  = "Stripe-Signature"
)
