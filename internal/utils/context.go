// Package utils provides shared utility functions and constants
package utils

// ContextKeyCreds is the key used to store relay credentials in the echo context
const ContextKeyCreds = "creds"

// Relay credential headers
const (
	HeaderEndpoint        = "X-R2-Endpoint"
	HeaderAccessKeyID     = "X-R2-Access-Key-Id"
	HeaderSecretAccessKey = "X-R2-Secret-Access-Key"
	HeaderBucket          = "X-R2-Bucket"
	HeaderProvider        = "X-R2-Provider"
	HeaderRegion          = "X-R2-Region"
)

// HeaderCSRFToken carries the CSRF token on workspace mutations
const HeaderCSRFToken = "X-CSRF-Token"

// CSRFCookieName is the cookie holding the CSRF token
const CSRFCookieName = "csrf"
