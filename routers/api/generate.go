package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
	"PromptToVideo-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateVideoAPI 外部密钥入口：POST /generate-video-api
// Authorization: Bearer <API key>，密钥按 SHA-256 摘要比对，明文从不入库。
// 与原生 UI 入口不同，这里在请求内同步执行整条流水线，
// 响应语义是 202 风格的 {projectId, status:"processing"}。
func GenerateVideoAPI(c *gin.Context) {
	// 1) 密钥认证。摘要不匹配或密钥已停用一律 401，且不累计使用次数
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No API key provided"})
		return
	}
	rawKey := strings.TrimPrefix(authHeader, "Bearer ")
	apiKey, err := models.GetActiveAPIKeyByHash(models.GormDB, models.HashAPIKey(rawKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}
	if err := models.TouchAPIKeyUsage(models.GormDB, apiKey.ID); err != nil {
		log.Printf("更新密钥使用统计失败: %v", err)
	}

	// 2) 请求体
	var req struct {
		Prompt      string `json:"prompt"`
		Style       string `json:"style"`
		Duration    int    `json:"duration"`
		AspectRatio string `json:"aspectRatio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}
	if !models.IsValidStyle(req.Style) {
		req.Style = models.StyleCinematic
	}
	if req.Duration <= 0 {
		req.Duration = 30
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}

	// 3) 积分预检：不足时 402，此时未创建任何数据
	profile, err := models.GetProfileByUserID(models.GormDB, apiKey.UserId)
	required := config.AppConfig.Credits.VideoCost
	available := 0
	if err == nil {
		available = profile.Credits
	}
	if err != nil || profile.Credits < required {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "Insufficient credits",
			"required":  required,
			"available": available,
		})
		return
	}

	// 4) 同步执行流水线
	run := models.Run{
		ID:          uuid.NewString(),
		UserId:      apiKey.UserId,
		Status:      models.RunStatusPending,
		Step:        models.StepCheckingCredits,
		Prompt:      req.Prompt,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
	}
	if err := models.CreateRun(models.GormDB, &run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create run"})
		return
	}

	pipeline := service.NewPipeline(models.NewGormStore(models.GormDB))
	if err := executePipeline(c.Request.Context(), pipeline, &run); err != nil {
		var ic *service.InsufficientCreditsError
		if errors.As(err, &ic) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":     "Insufficient credits",
				"required":  ic.Required,
				"available": ic.Available,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": service.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projectId":        run.ProjectId,
		"status":           "processing",
		"creditsRemaining": run.CreditsRemaining,
		"message":          "Video generation started. Check project status for completion.",
	})
}

// executePipeline 在脱离请求取消信号的 context 上执行流水线：
// 调用方中途断开连接，本次运行也会继续跑到终态（与队列路径一致）
func executePipeline(ctx context.Context, p *service.Pipeline, run *models.Run) error {
	return p.Execute(context.WithoutCancel(ctx), run)
}
