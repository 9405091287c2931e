package modbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/apis/response"
	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
	"modbusgateway/pkg/utils/differenceutil"
	v1 "modbusgateway/pkg/v1"
)

var patchTypes = sets.NewString(string(types.JSONPatchType), string(types.MergePatchType))

const maxJSONPatchOperations = 100

// AttributeValues last values with their timestamps.
type AttributeValues interface {
	Get(ref runtime.AttributeRef) (runtime.AttributeValue, bool)
}

func InstallHandler(group *gin.RouterGroup, p *Protocol, values AttributeValues) {
	group.GET("/agent", getAgent(p))
	group.GET("/agent/deviceconfig", getDeviceConfig(p))
	group.PUT("/agent/deviceconfig", updateDeviceConfig(p))
	group.PATCH("/agent/deviceconfig", patchDeviceConfig(p))
	group.GET("/links", listLinks(p, values))
	group.PUT("/links", replaceLinks(p, values))
	group.GET("/links/:assetId/:attribute", getLink(p, values))
	group.PUT("/links/:assetId/:attribute", linkAttribute(p, values))
	group.DELETE("/links/:assetId/:attribute", unlinkAttribute(p))
	group.PUT("/links/:assetId/:attribute/value", writeAttribute(p))
}

func refFromPath(c *gin.Context) runtime.AttributeRef {
	return runtime.AttributeRef{AssetId: c.Param("assetId"), Attribute: c.Param("attribute")}
}

func getAgent(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := AgentToV1(p.GetAgent())
		agent.DeviceConfig = DeviceConfigToV1(p.GetDeviceConfig())
		status := &v1.ModbusAgentStatus{
			ModbusAgent: agent,
			Protocol:    p.GetProtocolName(),
			Status:      p.GetConnectionStatus().String(),
			Batches:     make(map[string][]*v1.BatchRequest),
		}
		for group, batches := range p.GetBatchPlans() {
			for _, b := range batches {
				br := &v1.BatchRequest{StartAddress: b.StartAddress, Quantity: b.Quantity}
				for _, m := range b.Members {
					br.Attributes = append(br.Attributes, m.Ref.String())
				}
				status.Batches[group] = append(status.Batches[group], br)
			}
		}
		c.JSON(http.StatusOK, status)
	}
}

func linkedAttribute(ref runtime.AttributeRef, link *modbus.AttributeLink, values AttributeValues) *v1.LinkedAttribute {
	out := &v1.LinkedAttribute{
		AssetId:    ref.AssetId,
		Attribute:  ref.Attribute,
		AgentLink:  AgentLinkToV1(link),
		AccessMode: link.AccessMode().String(),
	}
	if v, ok := values.Get(ref); ok && !v.Timestamp.IsZero() {
		out.Value = v.Value
		out.Timestamp = v.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func sortedLinks(p *Protocol, values AttributeValues) []*v1.LinkedAttribute {
	links := p.GetLinks()
	out := make([]*v1.LinkedAttribute, 0, len(links))
	for ref, link := range links {
		out = append(out, linkedAttribute(ref, link, values))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetId != out[j].AssetId {
			return out[i].AssetId < out[j].AssetId
		}
		return out[i].Attribute < out[j].Attribute
	})
	return out
}

func listLinks(p *Protocol, values AttributeValues) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sortedLinks(p, values))
	}
}

func getLink(p *Protocol, values AttributeValues) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := refFromPath(c)
		link, ok := p.GetLink(ref)
		if !ok {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(ref.String())))
			return
		}
		c.JSON(http.StatusOK, linkedAttribute(ref, link, values))
	}
}

func linkAttribute(p *Protocol, values AttributeValues) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var agentLink map[string]interface{}
		if err := json.NewDecoder(c.Request.Body).Decode(&agentLink); err != nil {
			klog.V(3).InfoS("Failed to decode agent link", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		ref := refFromPath(c)
		_, link, errs := ConvertAttributeLink(field.NewPath("link"), &v1.AttributeLink{AssetId: ref.AssetId, Attribute: ref.Attribute, AgentLink: agentLink})
		if len(errs) > 0 {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidResource("link", errs.ToAggregate())))
			return
		}
		p.LinkAttribute(ref, link)
		c.JSON(http.StatusOK, linkedAttribute(ref, link, values))
	}
}

func unlinkAttribute(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := refFromPath(c)
		if err := p.UnlinkAttribute(ref); err != nil {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(ref.String())))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// replaceLinks makes the posted set the complete link set, unchanged links keep their schedule.
func replaceLinks(p *Protocol, values AttributeValues) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []*v1.AttributeLink
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(3).InfoS("Failed to bind links", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		var allErrs field.ErrorList
		desired := make(map[runtime.AttributeRef]*modbus.AttributeLink, len(body))
		desiredRefs := make([]runtime.AttributeRef, 0, len(body))
		for i, l := range body {
			ref, link, errs := ConvertAttributeLink(field.NewPath("links").Index(i), l)
			allErrs = append(allErrs, errs...)
			desired[ref] = link
			desiredRefs = append(desiredRefs, ref)
		}
		if len(allErrs) > 0 {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidResource("links", allErrs.ToAggregate())))
			return
		}

		current := p.GetLinks()
		currentRefs := make([]runtime.AttributeRef, 0, len(current))
		for ref := range current {
			currentRefs = append(currentRefs, ref)
		}

		removed, kept, added := differenceutil.DifferenceAndIntersection(currentRefs, desiredRefs)
		for _, ref := range removed {
			_ = p.UnlinkAttribute(ref)
		}
		for _, ref := range kept {
			if !reflect.DeepEqual(current[ref], desired[ref]) {
				p.LinkAttribute(ref, desired[ref])
			}
		}
		for _, ref := range added {
			p.LinkAttribute(ref, desired[ref])
		}
		klog.V(3).InfoS("Replaced links", "removed", len(removed), "kept", len(kept), "added", len(added))
		c.JSON(http.StatusOK, sortedLinks(p, values))
	}
}

func writeAttribute(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var body v1.WriteValue
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		if body.Value == nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody))
			return
		}
		ref := refFromPath(c)
		err := p.WriteAttribute(ref, body.Value)
		if err == nil {
			c.Status(http.StatusAccepted)
			return
		}

		var exception *codec.ExceptionError
		switch {
		case errors.Is(err, constant.ErrAttributeUnknown):
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(ref.String())))
		case errors.Is(err, constant.ErrNotConnected):
			c.JSON(http.StatusConflict, response.NewMultiError(response.ErrAgentNotConnected(p.GetAgentId(), err)))
		case modbus.IsTimeout(err):
			c.JSON(http.StatusGatewayTimeout, response.NewMultiError(response.ErrWriteAttribute(ref.String(), err)))
		case errors.As(err, &exception), errors.Is(err, modbus.ErrBadConn), errors.Is(err, modbus.ErrClientsClosed):
			c.JSON(http.StatusBadGateway, response.NewMultiError(response.ErrWriteAttribute(ref.String(), err)))
		default:
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrWriteAttribute(ref.String(), err)))
		}
	}
}

func getDeviceConfig(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, DeviceConfigToV1(p.GetDeviceConfig()))
	}
}

func setDeviceConfig(c *gin.Context, p *Protocol, in map[string]*v1.DeviceConfig) {
	config, errs := ConvertDeviceConfig(field.NewPath("deviceConfig"), in)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidResource("deviceConfig", errs.ToAggregate())))
		return
	}
	p.SetDeviceConfig(config)
	c.JSON(http.StatusOK, DeviceConfigToV1(config))
}

func updateDeviceConfig(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var in map[string]*v1.DeviceConfig
		if err := json.NewDecoder(c.Request.Body).Decode(&in); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		setDeviceConfig(c, p, in)
	}
}

func patchDeviceConfig(p *Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		versionedJS, err := json.Marshal(DeviceConfigToV1(p.GetDeviceConfig()))
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		patchedJS, err := applyJSPatch(types.PatchType(contentType), patchBytes, versionedJS)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		var in map[string]*v1.DeviceConfig
		if err := json.NewDecoder(bytes.NewBuffer(patchedJS)).Decode(&in); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		setDeviceConfig(c, p, in)
	}
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) ([]byte, error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err := jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	default:
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
