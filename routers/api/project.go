package api

import (
	"log"
	"net/http"

	"PromptToVideo-server/models"
	"PromptToVideo-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建项目并启动生成流水线（UI 入口，异步执行，进度走 run 接口/WebSocket）
func CreateProject(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req struct {
		Prompt      string `json:"prompt"`
		Style       string `json:"style"`
		Duration    int    `json:"duration"`
		AspectRatio string `json:"aspectRatio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}
	// 默认参数
	if !models.IsValidStyle(req.Style) {
		req.Style = models.StyleCinematic
	}
	if req.Duration <= 0 {
		req.Duration = 30
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}

	// 1) 建 run 记录
	run := models.Run{
		ID:          uuid.NewString(),
		UserId:      userID,
		Status:      models.RunStatusPending,
		Step:        models.StepCheckingCredits,
		Progress:    0,
		Prompt:      req.Prompt,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
	}
	if err := models.CreateRun(models.GormDB, &run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建 run 失败: " + err.Error()})
		return
	}

	// 2) 入队执行
	if err := service.EnqueueRun(run.ID); err != nil {
		log.Printf("run 入队失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "入队失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": run.ID,
		"status": run.Status,
	})
}

// 项目列表
func ListProjects(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	projects, err := models.ListProjectsByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询项目失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// 获取项目详情（含按 scene_number 排序的分镜）
func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	scenes, err := models.GetScenesByProjectID(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分镜失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_detail": project,
		"scenes":         scenes,
	})
}

// 删除项目（用户主动操作，流水线自身从不删除数据）
func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if err := models.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "项目已删除",
	})
}
