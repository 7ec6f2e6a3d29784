package routers

import (
	"net/http"
	"time"

	"github.com/CamGateway/CamGateway/utils"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
)

/**
 * @apiDefine stats Statistics
 */

/**
 * @api {get} /api/v1/stats gateway and host statistics
 * @apiGroup stats
 * @apiName Stats
 * @apiSuccess (200) {Array} streams per-stream supervision snapshot
 * @apiSuccess (200) {Number} cpuUsage host cpu usage percent
 * @apiSuccess (200) {Number} memUsage host memory usage percent
 */
func (h *APIHandler) Stats(c *gin.Context) {
	stats := gin.H{
		"version": BuildVersion,
		"upSince": utils.DateTime(h.upSince),
		"uptime":  time.Since(h.upSince).String(),
		"streams": h.Supervisor.Snapshot(),
		"leases":  h.Supervisor.Count(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpuUsage"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memUsage"] = vm.UsedPercent
		stats["memTotal"] = vm.Total
	}
	if avg, err := load.Avg(); err == nil {
		stats["load1"] = avg.Load1
	}
	c.IndentedJSON(http.StatusOK, stats)
}
