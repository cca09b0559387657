package middlewares

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets browser hardening headers. The daemon serves plain HTTP on
// loopback, so there is no TLS redirect or HSTS.
func SecurityHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		SSLRedirect:        false,
		IsDevelopment:      false,
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IENoOpen:           true,
		ReferrerPolicy:     "same-origin",
	})
}
