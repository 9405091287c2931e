package generic

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/util/sets"

	"modbusgateway/pkg/apis/response"
)

type Server struct {
	Router  *gin.Engine
	Port    string
	Methods []string
}

// AllowMethods rejects requests whose method is not in s.Methods.
func (s *Server) AllowMethods() gin.HandlerFunc {
	allowed := sets.NewString(s.Methods...)
	return func(c *gin.Context) {
		if !allowed.Has(c.Request.Method) {
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, response.NewMultiError(response.ErrMethodNotAllowed(c.Request.Method)))
			return
		}
		c.Next()
	}
}
