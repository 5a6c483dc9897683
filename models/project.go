package models

import "time"

// 项目状态常量（状态单向推进，completed 之后不再回退）
const (
	ProjectStatusDraft      = "draft"      // 项目已创建，流水线尚未开始
	ProjectStatusGenerating = "generating" // 流水线执行中
	ProjectStatusCompleted  = "completed"  // 成片已生成，video_url 非空
	ProjectStatusFailed     = "failed"     // 流水线失败（已持久化的分镜保留）
)

// 视频风格
const (
	StyleCinematic     = "cinematic"
	StyleAnime         = "anime"
	StyleVlog          = "vlog"
	StyleRealistic     = "realistic"
	StyleAdvertisement = "advertisement"
	StyleDocumentary   = "documentary"
)

type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserId      string    `json:"userId"`
	Title       string    `json:"title"`
	Prompt      string    `json:"prompt"`
	Style       string    `json:"style"`
	AspectRatio string    `json:"aspectRatio"`
	Duration    int       `json:"duration"` // 总时长（秒），等于各分镜时长之和
	Status      string    `json:"status"`
	Script      Script    `gorm:"type:json" json:"script"`
	VideoUrl    string    `json:"videoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// IsValidStyle 校验风格枚举，未知风格回退 cinematic 由调用方决定
func IsValidStyle(style string) bool {
	switch style {
	case StyleCinematic, StyleAnime, StyleVlog, StyleRealistic, StyleAdvertisement, StyleDocumentary:
		return true
	}
	return false
}
