package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PromptToVideo-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypePipelineRun = "run:pipeline"
)

type RunPayload struct {
	RunID string `json:"run_id"`
}

var QueueClient *asynq.Client

// InitQueue 初始化
func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueRun 流水线运行入队。MaxRetry(0)：核心流程不做任何自动重试，
// 重试一律由用户重新发起。
func EnqueueRun(runID string) error {
	payload, err := json.Marshal(RunPayload{RunID: runID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypePipelineRun, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute), // 生成 + 渲染轮询整体上限
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Run Enqueued: ID=%s, RunID=%s", info.ID, runID)
	return nil
}
