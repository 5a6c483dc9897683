package api

import (
	"net/http"
	"time"

	"PromptToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 每次写出的截止时间；超时视为客户端已离开
const wsWriteWait = 10 * time.Second

// 查询流水线运行状态：GET /v1/api/runs/:run_id
func GetRunStatus(c *gin.Context) {
	runID := c.Param("run_id")
	run, err := models.GetRunByID(models.GormDB, runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// 运行进度 WebSocket 推送。以数据库为来源：先推当前状态，
// 之后每秒轮询 DB，步骤/进度变化时推送，终态后关闭连接。
func RunProgressWebSocket(c *gin.Context) {
	runID := c.Param("run_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	pushRunProgress(conn, time.Second, func() (*models.Run, error) {
		return models.GetRunByID(models.GormDB, runID)
	})
}

// pushRunProgress 推送循环：变化时推送 run 快照，无变化时发 ping 探测
// 客户端是否还在，写失败或终态即返回。每次写出都带截止时间，
// 运行停滞 + 客户端悄然离开的组合不会让本协程无限存活
func pushRunProgress(conn *websocket.Conn, interval time.Duration, fetch func() (*models.Run, error)) {
	run, err := fetch()
	if err != nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(map[string]interface{}{"error": "run not found: " + err.Error()})
		return
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(run); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prevStep := run.Step
	prevProgress := run.Progress

	for range ticker.C {
		cur, err := fetch()
		if err != nil {
			continue
		}

		if cur.Step != prevStep || cur.Progress != prevProgress {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(cur); err != nil {
				return
			}
			prevStep = cur.Step
			prevProgress = cur.Progress
		} else if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
			// 客户端已断开
			return
		}

		if cur.Status == models.RunStatusSuccess || cur.Status == models.RunStatusFailed {
			// 发送最终状态后关闭连接
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteJSON(cur)
			return
		}
	}
}
