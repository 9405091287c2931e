package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/gateway", func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.GetGatewayMeta())
	})
	group.GET("/gateway/cpu", usage("cpu", func() (ResponseModel, error) {
		cpus, err := mgr.getGatewayCpu()
		return ResponseModel{Cpus: cpus}, err
	}))
	group.GET("/gateway/mem", usage("memory", func() (ResponseModel, error) {
		mem, err := mgr.getGatewayMem()
		return ResponseModel{Mem: mem}, err
	}))
	group.GET("/gateway/disk", usage("disk", func() (ResponseModel, error) {
		disks, err := mgr.getGatewayDisk()
		return ResponseModel{Disks: disks}, err
	}))
}

// usage answers a host usage snapshot, 500 when the host can not be sampled.
func usage(what string, sample func() (ResponseModel, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		model, err := sample()
		if err != nil {
			klog.V(2).InfoS("Failed to sample host usage", "usage", what, "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, model)
	}
}
