package routers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/CamGateway/CamGateway/log"
	"github.com/CamGateway/CamGateway/models"
	"github.com/CamGateway/CamGateway/registry"
	"github.com/CamGateway/CamGateway/supervisor"
	"github.com/CamGateway/CamGateway/utils"
	"github.com/gin-gonic/gin"
)

/**
 * @apiDefine stream Stream management
 */

type streamForm struct {
	Name      string `json:"name" binding:"required"`
	URL       string `json:"url" binding:"required"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Enabled   *bool  `json:"enabled"`
	OnvifPort int    `json:"onvifPort"`
}

func (f streamForm) toModel() models.Stream {
	enabled := true
	if f.Enabled != nil {
		enabled = *f.Enabled
	}
	return models.Stream{
		Name:      f.Name,
		URL:       f.URL,
		Username:  f.Username,
		Password:  f.Password,
		Enabled:   enabled,
		OnvifPort: f.OnvifPort,
	}
}

/**
 * @api {get} /api/v1/streams list configured streams
 * @apiGroup stream
 * @apiName StreamList
 * @apiParam {Number} [start] page start, zero based
 * @apiParam {Number} [limit] page size
 * @apiParam {String} [sort] sort field
 * @apiParam {String=ascending,descending} [order] sort order
 * @apiParam {String} [q] query filter
 */
func (h *APIHandler) StreamList(c *gin.Context) {
	form := utils.NewPageForm()
	if err := c.Bind(form); err != nil {
		return
	}
	streams, err := h.Registry.List()
	if err != nil {
		log.Error("list streams err: ", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
		return
	}
	rows := make([]interface{}, 0, len(streams))
	for _, s := range streams {
		if form.Q != "" &&
			!strings.Contains(strings.ToLower(s.Name), strings.ToLower(form.Q)) &&
			!strings.Contains(strings.ToLower(s.URL), strings.ToLower(form.Q)) {
			continue
		}
		status := supervisor.Stopped.String()
		lastError := ""
		if info, err := h.Supervisor.Status(s.ID); err == nil {
			status = info.Status
			lastError = info.LastError
		}
		rows = append(rows, map[string]interface{}{
			"id":        s.ID,
			"name":      s.Name,
			"url":       s.URL,
			"enabled":   s.Enabled,
			"onvifPort": s.OnvifPort,
			"status":    status,
			"lastError": lastError,
			"createdAt": utils.DateTime(s.CreatedAt),
		})
	}
	pr := utils.NewPageResult(rows)
	if form.Sort != "" {
		pr.Sort(form.Sort, form.Order)
	}
	pr.Slice(form.Start, form.Limit)
	c.IndentedJSON(http.StatusOK, pr)
}

/**
 * @api {post} /api/v1/streams create a stream
 * @apiGroup stream
 * @apiName StreamCreate
 */
func (h *APIHandler) StreamCreate(c *gin.Context) {
	var form streamForm
	if err := c.BindJSON(&form); err != nil {
		log.Error("create stream bind err: ", err)
		return
	}
	stream, err := h.Registry.Create(form.toModel())
	if err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, stream)
}

/**
 * @api {get} /api/v1/streams/:id get one stream
 * @apiGroup stream
 * @apiName StreamGet
 */
func (h *APIHandler) StreamGet(c *gin.Context) {
	stream, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, stream)
}

/**
 * @api {put} /api/v1/streams/:id update a stream
 * @apiGroup stream
 * @apiName StreamUpdate
 */
func (h *APIHandler) StreamUpdate(c *gin.Context) {
	var form streamForm
	if err := c.BindJSON(&form); err != nil {
		log.Error("update stream bind err: ", err)
		return
	}
	stream, err := h.Registry.Update(c.Param("id"), form.toModel())
	if err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, stream)
}

/**
 * @api {delete} /api/v1/streams/:id delete a stream
 * @apiGroup stream
 * @apiName StreamDelete
 */
func (h *APIHandler) StreamDelete(c *gin.Context) {
	if err := h.Registry.Delete(c.Param("id")); err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/**
 * @api {get} /api/v1/streams/:id/status current stream status
 * @apiGroup stream
 * @apiName StreamStatus
 * @apiSuccess (200) {String} status one of Stopped, Starting, Running, Degraded, CrashLoop, Stopping
 * @apiSuccess (200) {String} lastError last observed error, if any
 */
func (h *APIHandler) StreamStatus(c *gin.Context) {
	id := c.Param("id")
	info, err := h.Supervisor.Status(id)
	if err == nil {
		c.IndentedJSON(http.StatusOK, info)
		return
	}
	if !errors.Is(err, supervisor.ErrUnknownStream) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
		return
	}
	// known but never started reports Stopped; truly unknown is a 404
	stream, rerr := h.Registry.Get(id)
	if rerr != nil {
		abortRegistryErr(c, rerr)
		return
	}
	c.IndentedJSON(http.StatusOK, supervisor.Info{
		ID:     stream.ID,
		Name:   stream.Name,
		Status: supervisor.Stopped.String(),
	})
}

/**
 * @api {post} /api/v1/streams/:id/start enable and start a stream
 * @apiGroup stream
 * @apiName StreamStart
 */
func (h *APIHandler) StreamStart(c *gin.Context) {
	if err := h.Registry.SetEnabled(c.Param("id"), true); err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "OK")
}

/**
 * @api {post} /api/v1/streams/:id/stop disable and stop a stream
 * @apiGroup stream
 * @apiName StreamStop
 */
func (h *APIHandler) StreamStop(c *gin.Context) {
	if err := h.Registry.SetEnabled(c.Param("id"), false); err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "OK")
}

/**
 * @api {post} /api/v1/streams/:id/restart restart a stream's relay
 * @apiGroup stream
 * @apiName StreamRestart
 */
func (h *APIHandler) StreamRestart(c *gin.Context) {
	id := c.Param("id")
	if err := h.Supervisor.Restart(id); err == nil {
		c.IndentedJSON(http.StatusOK, "OK")
		return
	}
	// not managed right now: enabling it is the restart
	if _, err := h.Registry.Get(id); err != nil {
		abortRegistryErr(c, err)
		return
	}
	if err := h.Registry.SetEnabled(id, true); err != nil {
		abortRegistryErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "OK")
}

func abortRegistryErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, "stream not found")
	case errors.Is(err, registry.ErrConfigInvalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
	default:
		log.Error("registry err: ", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, fmt.Sprintf("registry error: %v", err))
	}
}
