package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile 用户积分档案，credits 为非负计数器
type Profile struct {
	UserId    string    `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profile"
}

// GetProfileByUserID 每次流水线启动前重新读取余额，不用缓存
func GetProfileByUserID(db *gorm.DB, userID string) (*Profile, error) {
	var p Profile
	if err := db.First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DebitCredits 扣减积分，依赖单行 UPDATE 的原子性，不做显式加锁
func DebitCredits(db *gorm.DB, userID string, amount int) error {
	return db.Model(&Profile{}).
		Where("user_id = ? AND credits >= ?", userID, amount).
		Updates(map[string]interface{}{
			"credits":    gorm.Expr("credits - ?", amount),
			"updated_at": time.Now(),
		}).Error
}
