package generic

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/apis/response"
)

// Default is a release mode engine with request logging, panic recovery and json 404/405 bodies.
func Default() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(c.Request.URL.Path)))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, response.NewMultiError(response.ErrMethodNotAllowed(c.Request.Method)))
	})
	return engine
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.V(4).InfoS("Served HTTP request",
			"method", c.Request.Method,
			"uri", c.Request.URL.RequestURI(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
