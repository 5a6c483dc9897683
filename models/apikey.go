package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// APIKey 外部调用密钥。只保存 SHA-256 摘要和截断预览，
// 明文只在创建响应里出现一次，之后无法找回。
type APIKey struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserId     string     `json:"userId"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPreview string     `json:"keyPreview"`
	IsActive   bool       `json:"isActive"`
	UsageCount int        `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (APIKey) TableName() string {
	return "api_key"
}

// HashAPIKey 计算明文密钥的 SHA-256 十六进制摘要
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateRawAPIKey 生成 sk_ 前缀的随机密钥明文
func GenerateRawAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机密钥失败: %w", err)
	}
	return "sk_" + hex.EncodeToString(buf), nil
}

// PreviewAPIKey 截断预览串：前 12 位 + "..." + 后 4 位
func PreviewAPIKey(raw string) string {
	if len(raw) < 16 {
		return raw
	}
	return raw[:12] + "..." + raw[len(raw)-4:]
}

func CreateAPIKey(db *gorm.DB, k *APIKey) error {
	k.CreatedAt = time.Now()
	return db.Create(k).Error
}

// GetActiveAPIKeyByHash 按摘要查找启用中的密钥；摘要不匹配或已停用返回错误
func GetActiveAPIKeyByHash(db *gorm.DB, keyHash string) (*APIKey, error) {
	var k APIKey
	if err := db.First(&k, "key_hash = ? AND is_active = ?", keyHash, true).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// TouchAPIKeyUsage 认证成功后累加使用次数并记录最后使用时间
func TouchAPIKeyUsage(db *gorm.DB, keyID string) error {
	return db.Model(&APIKey{}).Where("id = ?", keyID).Updates(map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": time.Now(),
	}).Error
}

func ListAPIKeysByUser(db *gorm.DB, userID string) ([]APIKey, error) {
	var keys []APIKey
	err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// DeactivateAPIKey 停用密钥（软删除，摘要保留以便审计）
func DeactivateAPIKey(db *gorm.DB, userID, keyID string) error {
	return db.Model(&APIKey{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("is_active", false).Error
}
