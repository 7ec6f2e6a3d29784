// Package onvif serves per-stream discovery documents for NVRs. Every
// document is rendered from live supervisor state on each request; nothing is
// cached, so an embedded URI can never carry a stale port.
package onvif

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/CamGateway/CamGateway/log"
	"github.com/CamGateway/CamGateway/relay"
	"github.com/CamGateway/CamGateway/supervisor"
	"github.com/CamGateway/CamGateway/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

type Handler struct {
	sup *supervisor.Supervisor
}

func NewHandler(sup *supervisor.Supervisor) *Handler {
	return &Handler{sup: sup}
}

// Register mounts the ONVIF endpoints on the gateway's HTTP server.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/onvif/:id/device.xml", h.DeviceXML)
	r.GET("/onvif/:id/media.wsdl", h.MediaWSDL)
	r.POST("/onvif/:id/media", h.MediaService)
	r.GET("/onvif/:id/stream", h.StreamEndpoint)
}

const contentTypeXML = "application/xml; charset=utf-8"

/**
 * @api {get} /onvif/:id/device.xml ONVIF device descriptor
 * @apiGroup onvif
 * @apiName DeviceXML
 */
func (h *Handler) DeviceXML(c *gin.Context) {
	id := c.Param("id")
	info, err := h.sup.Status(id)
	if err != nil {
		notFound(c, id)
		return
	}
	body := fmt.Sprintf(deviceTemplate,
		xmlEscape(viper.GetString("onvif.manufacturer")),
		xmlEscape(info.Name),
		xmlEscape(viper.GetString("onvif.firmware_version")),
		xmlEscape(fmt.Sprintf("CAM-%s", strings.ToUpper(id))),
		xmlEscape(fmt.Sprintf("CamGateway-%s", id)),
	)
	c.Data(http.StatusOK, contentTypeXML, []byte(body))
}

/**
 * @api {get} /onvif/:id/media.wsdl ONVIF media service description
 * @apiGroup onvif
 * @apiName MediaWSDL
 */
func (h *Handler) MediaWSDL(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sup.Status(id); err != nil {
		notFound(c, id)
		return
	}
	base := fmt.Sprintf("http://%s", c.Request.Host)
	body := fmt.Sprintf(mediaWSDLTemplate, fmt.Sprintf("%s/onvif/%s/media", base, id))
	c.Data(http.StatusOK, contentTypeXML, []byte(body))
}

/**
 * @api {post} /onvif/:id/media ONVIF media control endpoint
 * @apiGroup onvif
 * @apiName MediaService
 * @apiDescription SOAP endpoint. GetStreamUri answers with the effective
 * relay RTSP URL built from the current port lease.
 */
func (h *Handler) MediaService(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sup.Status(id); err != nil {
		notFound(c, id)
		return
	}
	body, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		log.Error("read soap body err: ", err)
		c.Data(http.StatusBadRequest, contentTypeXML, []byte(soapFault))
		return
	}

	if bytes.Contains(body, []byte("GetStreamUri")) {
		port, ok := h.sup.PortOf(id)
		if !ok {
			notFound(c, id)
			return
		}
		host := utils.GetRequestHostname(c.Request)
		uri := fmt.Sprintf("rtsp://%s:%d%s", host, port, relay.RelayPath)
		c.Data(http.StatusOK, contentTypeXML, []byte(fmt.Sprintf(streamURITemplate, xmlEscape(uri))))
		return
	}
	// a Sender-class fault is the caller's mistake
	c.Data(http.StatusBadRequest, contentTypeXML, []byte(soapFault))
}

/**
 * @api {get} /onvif/:id/stream relay endpoint hint
 * @apiGroup onvif
 * @apiName StreamEndpoint
 */
func (h *Handler) StreamEndpoint(c *gin.Context) {
	id := c.Param("id")
	info, err := h.sup.Status(id)
	if err != nil {
		notFound(c, id)
		return
	}
	port, ok := h.sup.PortOf(id)
	if !ok {
		notFound(c, id)
		return
	}
	host := utils.GetRequestHostname(c.Request)
	c.String(http.StatusOK, "RTSP stream for %s: rtsp://%s:%d%s", info.Name, host, port, relay.RelayPath)
}

func notFound(c *gin.Context, id string) {
	c.Data(http.StatusNotFound, contentTypeXML,
		[]byte(fmt.Sprintf("<error>Stream %s not found</error>", xmlEscape(id))))
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
