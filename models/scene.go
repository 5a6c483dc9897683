package models

import (
	"time"

	"gorm.io/gorm"
)

// 分镜状态：failed 仅表示图像与语音两次调用本身都抛错，
// 单个素材缺失不影响 completed（image_url / audio_url 各自可空）
const (
	SceneStatusCompleted = "completed"
	SceneStatusFailed    = "failed"
)

type Scene struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId   string    `json:"projectId"`
	SceneNumber int       `json:"sceneNumber"` // 1 开始，项目内连续无空洞
	Description string    `json:"description"` // 生图提示词来源
	Narration   string    `json:"narration"`
	Duration    int       `json:"duration"` // 秒，>=1
	ImageUrl    *string   `json:"imageUrl"`
	AudioUrl    *string   `json:"audioUrl"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}

// BatchCreateScenes 批量插入分镜，按 scene_number 顺序传入
func BatchCreateScenes(db *gorm.DB, scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return db.Create(&scenes).Error
}

func GetScenesByProjectID(db *gorm.DB, projectID string) ([]Scene, error) {
	var scenes []Scene
	err := db.Where("project_id = ?", projectID).Order("scene_number ASC").Find(&scenes).Error
	return scenes, err
}

func GetSceneByIDGorm(db *gorm.DB, sceneID string) (*Scene, error) {
	var scene Scene
	if err := db.First(&scene, "id = ?", sceneID).Error; err != nil {
		return nil, err
	}
	return &scene, nil
}
