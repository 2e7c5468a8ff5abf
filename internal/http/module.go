// Package http assembles the API server from feature modules.
package http

import (
	"github.com/gin-gonic/gin"

	"listingportal_backend/platform/config"
)

// RouterContext hands each module the route groups it may attach to.
type RouterContext struct {
	Engine    *gin.Engine
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
}

// Module is one mountable feature of the API.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterConfig is everything the router needs from the environment.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}
