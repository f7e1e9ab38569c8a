package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer auth: liveness and status probes.
var publicPaths = map[string]bool{
	"/health":            true,
	"/api/v1/health":     true,
	"/api/v1/app-status": true,
	"/api/v1/db-health":  true,
}

// AuthSkipper is the JWTConfig.Skipper used by the server.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
