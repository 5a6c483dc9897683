package models

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// 流水线运行状态
const (
	RunStatusPending    = "pending"
	RunStatusProcessing = "processing"
	RunStatusSuccess    = "finished"
	RunStatusFailed     = "failed"
)

// 流水线步骤（进度以离散步骤 + 百分比对外可见）
const (
	StepCheckingCredits  = "checking_credits"
	StepGeneratingScript = "generating_script"
	StepGeneratingMedia  = "generating_media"
	StepPersisting       = "persisting"
	StepSubmittingRender = "submitting_render"
	StepPollingRender    = "polling_render"
	StepCompleted        = "completed"
	StepFailed           = "failed"
)

// Run 一次完整的生成流水线运行记录
type Run struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId        string    `json:"projectId,omitempty"` // Persisting 阶段之后才有值
	UserId           string    `json:"userId"`
	Status           string    `json:"status"`
	Step             string    `json:"step"`
	Progress         int       `json:"progress"` // 0-100，单调不减
	Prompt           string    `json:"prompt"`
	Style            string    `json:"style"`
	AspectRatio      string    `json:"aspectRatio"`
	Duration         int       `json:"duration"` // 请求的目标总时长（秒）
	Error            string    `json:"error"`
	VideoUrl         string    `json:"videoUrl"`
	CreditsRemaining int       `json:"creditsRemaining"` // 完成扣费后的剩余积分
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (Run) TableName() string {
	return "run"
}

func CreateRun(db *gorm.DB, r *Run) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	return db.Create(r).Error
}

func GetRunByID(db *gorm.DB, runID string) (*Run, error) {
	var run Run
	if err := db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateProgress 推进运行状态；progress 只允许前进，传入更小的值会被忽略
func (r *Run) UpdateProgress(db *gorm.DB, step string, progress int, status string) error {
	updates := map[string]interface{}{
		"step":       step,
		"status":     status,
		"updated_at": time.Now(),
	}
	if progress > r.Progress {
		updates["progress"] = progress
		r.Progress = progress
	}
	r.Step = step
	r.Status = status
	return db.Model(r).Updates(updates).Error
}

// MarkFailed 进入 failed 吸收态，保留已写入的 project / scene 数据
func (r *Run) MarkFailed(db *gorm.DB, errMsg string) {
	updates := map[string]interface{}{
		"status":     RunStatusFailed,
		"step":       StepFailed,
		"error":      errMsg,
		"updated_at": time.Now(),
	}
	if err := db.Model(r).Updates(updates).Error; err != nil {
		log.Printf("标记 run 失败状态时出错 %s: %v", r.ID, err)
	}
	r.Status = RunStatusFailed
	r.Step = StepFailed
	r.Error = errMsg
}
