package api

import (
	"net/http"

	"PromptToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建 API 密钥。明文只在本次响应返回一次，库里只存 SHA-256 摘要和预览串
func CreateAPIKey(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rawKey, err := models.GenerateRawAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成密钥失败: " + err.Error()})
		return
	}

	key := models.APIKey{
		ID:         uuid.NewString(),
		UserId:     userID,
		Name:       req.Name,
		KeyHash:    models.HashAPIKey(rawKey),
		KeyPreview: models.PreviewAPIKey(rawKey),
		IsActive:   true,
	}
	if err := models.CreateAPIKey(models.GormDB, &key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存密钥失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"apiKey": rawKey,
		"id":     key.ID,
	})
}

// 密钥列表（只返回预览，明文不可找回）
func ListAPIKeys(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	keys, err := models.ListAPIKeysByUser(models.GormDB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询密钥失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

// 停用密钥
func DeleteAPIKey(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	keyID := c.Param("key_id")
	if err := models.DeactivateAPIKey(models.GormDB, userID, keyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "停用密钥失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
