package modbus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	v1 "modbusgateway/pkg/v1"
)

func newTestServer(t *testing.T, start bool) (*gin.Engine, *Protocol, *fakeDevice) {
	gin.SetMode(gin.TestMode)
	device := newFakeDevice()
	p, store := newTestProtocol(t, serveDevice(t, device))
	if start {
		p.Start(context.Background())
	}
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	router := gin.New()
	InstallHandler(router.Group("/api/v1"), p, store)
	return router, p, device
}

func boiler(name string) runtime.AttributeRef {
	return runtime.AttributeRef{AssetId: "boiler", Attribute: name}
}

func serve(router *gin.Engine, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(contentType) > 0 {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLinkHandlers(t *testing.T) {
	router, p, device := newTestServer(t, true)
	device.setRegisters(4, 321)

	w := serve(router, http.MethodPut, "/api/v1/links/boiler/pressure", "application/json",
		`{"readMemoryArea":"HOLDING","readAddress":"5","readValueType":"uint16"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, ok := p.GetLink(boiler("pressure"))
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		w := serve(router, http.MethodGet, "/api/v1/links/boiler/pressure", "", "")
		var got v1.LinkedAttribute
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		return w.Code == http.StatusOK && got.Value == float64(321)
	}, eventually, tick)

	w = serve(router, http.MethodGet, "/api/v1/links", "", "")
	var list []*v1.LinkedAttribute
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "r", list[0].AccessMode)
	assert.Equal(t, "UINT", list[0].AgentLink.ReadValueType)

	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pressure", "application/json", `{"readMemoryArea":"HOLDING"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "link.agentLink.readAddress")

	w = serve(router, http.MethodGet, "/api/v1/links/boiler/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodDelete, "/api/v1/links/boiler/pressure", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = serve(router, http.MethodDelete, "/api/v1/links/boiler/pressure", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteHandler(t *testing.T) {
	router, _, device := newTestServer(t, true)
	w := serve(router, http.MethodPut, "/api/v1/links/boiler/pump", "application/json", `{"writeMemoryArea":"COIL","writeAddress":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pump/value", "application/json", `{"value":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []byte{0x05, 0x00, 0x01, 0xFF, 0x00}, device.requestLog()[0])

	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pump/value", "application/json", `{"value":"sometimes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pump/value", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(router, http.MethodPut, "/api/v1/links/boiler/valve/value", "application/json", `{"value":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	device.mux.Lock()
	device.exceptions[1] = true
	device.mux.Unlock()
	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pump/value", "application/json", `{"value":false}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWriteHandlerNotConnected(t *testing.T) {
	router, _, _ := newTestServer(t, false)
	w := serve(router, http.MethodPut, "/api/v1/links/boiler/pump", "application/json", `{"writeMemoryArea":"COIL","writeAddress":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = serve(router, http.MethodPut, "/api/v1/links/boiler/pump/value", "application/json", `{"value":true}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "10007")
}

func TestReplaceLinksHandler(t *testing.T) {
	router, p, _ := newTestServer(t, true)
	serve(router, http.MethodPut, "/api/v1/links/boiler/old", "application/json", `{"readMemoryArea":"INPUT","readAddress":1}`)
	serve(router, http.MethodPut, "/api/v1/links/boiler/same", "application/json", `{"readMemoryArea":"INPUT","readAddress":2}`)
	same, _ := p.GetLink(boiler("same"))

	w := serve(router, http.MethodPut, "/api/v1/links", "application/json", `[
		{"assetId":"boiler","attribute":"same","agentLink":{"readMemoryArea":"INPUT","readAddress":2}},
		{"assetId":"boiler","attribute":"new","agentLink":{"writeMemoryArea":"HOLDING","writeAddress":9}}
	]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	links := p.GetLinks()
	assert.Len(t, links, 2)
	assert.NotContains(t, links, boiler("old"))
	assert.Same(t, same, links[boiler("same")])

	w = serve(router, http.MethodPut, "/api/v1/links", "application/json", `[{"assetId":"boiler","attribute":"x","agentLink":{"writeMemoryArea":"INPUT","writeAddress":1}}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "links[0].agentLink.writeMemoryArea")
	assert.Len(t, p.GetLinks(), 2)
}

func TestDeviceConfigHandlers(t *testing.T) {
	router, p, _ := newTestServer(t, true)

	w := serve(router, http.MethodGet, "/api/v1/agent/deviceconfig", "", "")
	assert.JSONEq(t, `{"default":{"maxRegisterLength":125,"endianFormat":"ABCD"}}`, w.Body.String())

	w = serve(router, http.MethodPatch, "/api/v1/agent/deviceconfig", "application/merge-patch+json",
		`{"default":{"maxRegisterLength":10},"2":{"maxRegisterLength":20,"illegalRegisters":"7","endianFormat":"CDAB"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10, p.GetDeviceConfig().Resolve(1).MaxRegisterLength)
	assert.Equal(t, "7", p.GetDeviceConfig().Resolve(2).IllegalRegisters)

	w = serve(router, http.MethodPatch, "/api/v1/agent/deviceconfig", "application/json-patch+json",
		`[{"op":"remove","path":"/2"}]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, p.GetDeviceConfig(), "2")

	w = serve(router, http.MethodPatch, "/api/v1/agent/deviceconfig", "application/json", `{}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	w = serve(router, http.MethodPatch, "/api/v1/agent/deviceconfig", "application/json-patch+json", `[{"op":"remove","path":"/9"}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodPut, "/api/v1/agent/deviceconfig", "application/json", `{"unit":{"maxRegisterLength":1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(router, http.MethodPut, "/api/v1/agent/deviceconfig", "application/json", `{"1":{"maxRegisterLength":1}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, modbus.DeviceConfigMap{"1": {MaxRegisterLength: 1, EndianFormat: modbus.DefaultDeviceEndianFormat}}, p.GetDeviceConfig())
}

func TestAgentHandler(t *testing.T) {
	router, _, _ := newTestServer(t, true)
	serve(router, http.MethodPut, "/api/v1/links/boiler/a", "application/json", `{"unitId":1,"readMemoryArea":"HOLDING","readValueType":"UINT","readAddress":1,"requestInterval":1000}`)
	serve(router, http.MethodPut, "/api/v1/links/boiler/b", "application/json", `{"unitId":1,"readMemoryArea":"HOLDING","readValueType":"UINT","readAddress":3,"requestInterval":1000}`)

	w := serve(router, http.MethodGet, "/api/v1/agent", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got v1.ModbusAgentStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "plc", got.Id)
	assert.Equal(t, "CONNECTED", got.Status)
	batches := got.Batches["plc_1_HOLDING_1000"]
	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Quantity)
	assert.Equal(t, []string{"boiler:a", "boiler:b"}, batches[0].Attributes)
}
