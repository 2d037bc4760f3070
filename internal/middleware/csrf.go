package middleware

import (
	"net/http"

	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// CSRF protects workspace mutations with a double-submit token. Safe
// methods issue the cookie; everything else must echo it in the header.
func CSRF(secure bool) echo.MiddlewareFunc {
	return echoMiddleware.CSRFWithConfig(echoMiddleware.CSRFConfig{
		TokenLookup:    "header:" + utils.HeaderCSRFToken,
		CookieName:     utils.CSRFCookieName,
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteStrictMode,
	})
}
