package routers

import (
	"net/http"
	"time"

	"github.com/CamGateway/CamGateway/onvif"
	"github.com/CamGateway/CamGateway/registry"
	"github.com/CamGateway/CamGateway/supervisor"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	cors "github.com/itsjamie/gin-cors"
)

var (
	Router        *gin.Engine
	API           *APIHandler
	BuildVersion  = "1.0.0"
	BuildDateTime = ""
)

// APIHandler carries the collaborators every endpoint needs. RestartChan asks
// main to bounce the servers after a config change that requires it.
type APIHandler struct {
	RestartChan chan bool
	Registry    *registry.Registry
	Supervisor  *supervisor.Supervisor
	upSince     time.Time
}

func Init(reg *registry.Registry, sup *supervisor.Supervisor) error {
	gin.SetMode(gin.ReleaseMode)
	API = &APIHandler{
		RestartChan: make(chan bool),
		Registry:    reg,
		Supervisor:  sup,
		upSince:     time.Now(),
	}
	Router = gin.New()
	Router.Use(gin.Recovery())
	Router.Use(cors.Middleware(cors.Config{
		Origins:         "*",
		Methods:         "GET, PUT, POST, DELETE",
		RequestHeaders:  "Origin, Authorization, Content-Type",
		ExposedHeaders:  "",
		MaxAge:          50 * time.Second,
		Credentials:     true,
		ValidateHeaders: false,
	}))
	pprof.Register(Router)

	Router.GET("/health", func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, gin.H{"status": "healthy", "service": "camgateway"})
	})

	api := Router.Group("/api/v1")
	{
		api.GET("/streams", API.StreamList)
		api.POST("/streams", API.StreamCreate)
		api.GET("/streams/:id", API.StreamGet)
		api.PUT("/streams/:id", API.StreamUpdate)
		api.DELETE("/streams/:id", API.StreamDelete)
		api.GET("/streams/:id/status", API.StreamStatus)
		api.POST("/streams/:id/start", API.StreamStart)
		api.POST("/streams/:id/stop", API.StreamStop)
		api.POST("/streams/:id/restart", API.StreamRestart)
		api.GET("/stats", API.Stats)
		api.POST("/restart", API.Restart)
	}

	h := onvif.NewHandler(sup)
	h.Register(Router)
	return nil
}

/**
 * @api {post} /api/v1/restart restart the gateway servers
 * @apiGroup sys
 * @apiName Restart
 */
func (h *APIHandler) Restart(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, "OK")
	go func() {
		h.RestartChan <- true
	}()
}
