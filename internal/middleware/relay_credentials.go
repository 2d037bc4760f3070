package middleware

import (
	"net/http"

	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/labstack/echo/v4"
)

// RelayCredentials builds per-request storage credentials from the X-R2-*
// headers, falling back per field to the configured environment values,
// and stores them in the context for handlers to use.
func RelayCredentials(env config.EnvCredentials) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			creds := &credentials.Credentials{
				Endpoint:        firstNonEmpty(h.Get(utils.HeaderEndpoint), env.Endpoint),
				AccessKeyID:     firstNonEmpty(h.Get(utils.HeaderAccessKeyID), env.AccessKeyID),
				SecretAccessKey: firstNonEmpty(h.Get(utils.HeaderSecretAccessKey), env.SecretAccessKey),
				Bucket:          firstNonEmpty(h.Get(utils.HeaderBucket), env.Bucket),
				Provider:        h.Get(utils.HeaderProvider),
				Region:          h.Get(utils.HeaderRegion),
			}

			if creds.Endpoint == "" || creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "R2 credentials not provided"})
			}

			c.Set(utils.ContextKeyCreds, creds)
			return next(c)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
