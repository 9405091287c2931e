package web

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"modbusgateway/cmd/gateway/config"
	"modbusgateway/pkg/gateway"
	"modbusgateway/pkg/generic"
	"modbusgateway/pkg/protocol/modbus"
)

type Server struct {
	*generic.Server
	*config.Config
}

func NewServer(router *gin.Engine, port string, config *config.Config) *Server {
	server := &Server{
		Server: &generic.Server{
			Router:  router,
			Port:    port,
			Methods: []string{http.MethodGet, http.MethodDelete, http.MethodPut, http.MethodPatch},
		},
		Config: config,
	}
	server.InstallHandlers()
	return server
}

func (s *Server) InstallHandlers() {
	v1 := s.Router.Group("/api/v1", s.AllowMethods())
	modbus.InstallHandler(v1, s.Config.Protocol, s.Config.Store)
	gateway.InstallHandler(v1, s.Config.GatewayMgr)
}

// Serve binds the port, serves in the background and returns the shutdown func. Shutdown
// stops the protocol and the mqtt client before the http server.
func (s *Server) Serve() (func(ctx context.Context), error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("", s.Port))
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s.Router}
	if len(s.Config.CertFile) != 0 {
		pair, err := tls.LoadX509KeyPair(s.Config.CertFile, s.Config.KeyFile)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{pair}}
		ln = tls.NewListener(ln, srv.TLSConfig)
	}
	klog.V(2).InfoS("Listening", "addr", ln.Addr().String(), "tls", srv.TLSConfig != nil)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.ErrorS(err, "Failed to serve")
		}
	}()

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := s.Config.Protocol.Stop(ctx); err != nil {
			klog.ErrorS(err, "Failed to stop protocol")
		}
		if s.Config.Store != nil {
			s.Config.Store.Close()
		}
		if s.Config.MqttClient != nil {
			s.Config.MqttClient.Disconnect(250)
		}
		if err := srv.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Failed to shutdown http server")
		}
	}, nil
}
