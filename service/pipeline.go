package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// Store 流水线依赖的持久化入口（models.GormStore 为生产实现）
type Store interface {
	CreateProject(p *models.Project) error
	BatchCreateScenes(scenes []models.Scene) error
	UpdateProjectVideo(projectID, videoURL, status string) error
	UpdateProjectStatus(projectID, status string) error
	GetProfile(userID string) (*models.Profile, error)
	DebitCredits(userID string, amount int) error
	UpdateRunProgress(r *models.Run, step string, progress int, status string) error
	MarkRunFailed(r *models.Run, errMsg string)
	FinishRun(r *models.Run, projectID, videoURL string, creditsRemaining int) error
	SetRunProject(r *models.Run, projectID string) error
}

// ScriptGenerator / Renderer 抽象出外部生成调用，便于替换
type ScriptGenerator interface {
	Generate(ctx context.Context, prompt, style string, duration int) (*models.Script, error)
}

type Renderer interface {
	Submit(ctx context.Context, project *models.Project, scenes []models.Scene) (videoURL, jobID string, err error)
	PollUntilDone(ctx context.Context, jobID string) (string, error)
}

// Pipeline 流水线控制器。状态机：
// checking_credits -> generating_script -> generating_media -> persisting
// -> submitting_render -> polling_render -> completed，failed 为吸收态。
// 整条链路不做自动重试，重试由用户重新发起。
type Pipeline struct {
	Store     Store
	Scripts   ScriptGenerator
	Media     *MediaGenerator
	Render    Renderer
	VideoCost int
}

func NewPipeline(store Store) *Pipeline {
	return &Pipeline{
		Store:     store,
		Scripts:   NewScriptClient(),
		Media:     NewMediaGenerator(),
		Render:    NewRenderOrchestrator(),
		VideoCost: config.AppConfig.Credits.VideoCost,
	}
}

// Execute 驱动一次完整运行。返回的 error 只用于日志，run 的终态都已落库。
func (p *Pipeline) Execute(ctx context.Context, run *models.Run) error {
	log.Printf("Pipeline run %s started (user=%s, duration=%ds, aspect=%s)", run.ID, run.UserId, run.Duration, run.AspectRatio)

	// 1. 积分闸门：读取最新余额，不足直接终止，此时没有任何付费调用和落库
	p.step(run, models.StepCheckingCredits, 5)
	profile, err := p.Store.GetProfile(run.UserId)
	if err != nil {
		return p.fail(run, ErrAuthRequired)
	}
	if profile.Credits < p.VideoCost {
		return p.fail(run, &InsufficientCreditsError{Required: p.VideoCost, Available: profile.Credits})
	}

	// 2. 脚本生成：调用失败整条流水线失败，项目与分镜都未持久化
	p.step(run, models.StepGeneratingScript, 20)
	script, err := p.Scripts.Generate(ctx, run.Prompt, run.Style, run.Duration)
	if err != nil {
		return p.fail(run, err)
	}
	p.step(run, models.StepGeneratingMedia, 40)

	// 3. 逐分镜生成素材：单个分镜失败只记录，阶段本身永不失败
	projectID := uuid.NewString()
	total := len(script.Scenes)
	scenes := make([]models.Scene, 0, total)
	for i, spec := range script.Scenes {
		sceneID := uuid.NewString()
		media := p.Media.GenerateScene(ctx, spec, run.Style, run.AspectRatio, sceneID)
		scenes = append(scenes, models.Scene{
			ID:          sceneID,
			ProjectId:   projectID,
			SceneNumber: spec.SceneNumber,
			Description: spec.Description,
			Narration:   spec.Narration,
			Duration:    spec.Duration,
			ImageUrl:    media.ImageUrl,
			AudioUrl:    media.AudioUrl,
			Status:      media.Status,
		})
		p.step(run, models.StepGeneratingMedia, 40+(i+1)*50/total)
	}

	// 4. 持久化：先建 project 行，再批量写入分镜；这里失败是致命的
	p.step(run, models.StepPersisting, 90)
	project := &models.Project{
		ID:          projectID,
		UserId:      run.UserId,
		Title:       script.Title,
		Prompt:      run.Prompt,
		Style:       run.Style,
		AspectRatio: run.AspectRatio,
		Duration:    script.TotalDuration(),
		Status:      models.ProjectStatusGenerating,
		Script:      *script,
	}
	if err := p.Store.CreateProject(project); err != nil {
		return p.fail(run, &PersistenceError{Op: "create project", Err: err})
	}
	if err := p.Store.SetRunProject(run, projectID); err != nil {
		log.Printf("写入 run.project_id 失败: %v", err)
	}
	if err := p.Store.BatchCreateScenes(scenes); err != nil {
		return p.fail(run, &PersistenceError{Op: "batch create scenes", Err: err})
	}

	// 5. 提交渲染。提交被接受即扣积分（debit-on-submit，后续超时/失败不退）
	p.step(run, models.StepSubmittingRender, 92)
	videoURL, jobID, err := p.Render.Submit(ctx, project, scenes)
	if err != nil {
		p.renderFailed(run, projectID, err)
		return err
	}
	creditsRemaining := profile.Credits
	if err := p.Store.DebitCredits(run.UserId, p.VideoCost); err != nil {
		log.Printf("扣减积分失败 user=%s: %v", run.UserId, err)
	} else {
		creditsRemaining = profile.Credits - p.VideoCost
		log.Printf("已扣减 %d 积分 (user=%s, 余额 %d)", p.VideoCost, run.UserId, creditsRemaining)
	}

	// 6. 轮询直到终态；渲染失败/超时不回滚已写入的项目与分镜
	if videoURL == "" {
		p.step(run, models.StepPollingRender, 95)
		videoURL, err = p.Render.PollUntilDone(ctx, jobID)
		if err != nil {
			p.renderFailed(run, projectID, err)
			return err
		}
	}

	// 7. 完成：写入成片地址，项目置为 completed
	if err := p.Store.UpdateProjectVideo(projectID, videoURL, models.ProjectStatusCompleted); err != nil {
		return p.fail(run, &PersistenceError{Op: "update project video", Err: err})
	}
	if err := p.Store.FinishRun(run, projectID, videoURL, creditsRemaining); err != nil {
		log.Printf("写入 run 完成状态失败: %v", err)
	}
	log.Printf("Pipeline run %s completed: %s", run.ID, videoURL)
	return nil
}

func (p *Pipeline) step(run *models.Run, step string, progress int) {
	if err := p.Store.UpdateRunProgress(run, step, progress, models.RunStatusProcessing); err != nil {
		log.Printf("更新 run 进度失败 %s/%s: %v", run.ID, step, err)
	}
}

// fail 进入 failed 吸收态；对用户暴露分类后的文案，原始错误只进日志
func (p *Pipeline) fail(run *models.Run, err error) error {
	log.Printf("[Pipeline] run %s failed at %s: %v", run.ID, run.Step, err)
	p.Store.MarkRunFailed(run, UserMessage(err))
	return err
}

// renderFailed 渲染阶段失败：run 失败、项目置 failed，已持久化数据保留可查
func (p *Pipeline) renderFailed(run *models.Run, projectID string, err error) {
	log.Printf("[Pipeline] run %s render failed (project=%s): %v", run.ID, projectID, err)
	if uerr := p.Store.UpdateProjectStatus(projectID, models.ProjectStatusFailed); uerr != nil {
		log.Printf("更新项目失败状态出错: %v", uerr)
	}
	p.Store.MarkRunFailed(run, UserMessage(err))
}

// ============================================================================
// 队列消费者
// ============================================================================

// Processor 消费 run:pipeline 任务
type Processor struct {
	DB       *gorm.DB
	Pipeline *Pipeline
}

func NewProcessor(db *gorm.DB) *Processor {
	return &Processor{
		DB:       db,
		Pipeline: NewPipeline(models.NewGormStore(db)),
	}
}

// StartProcessor 启动任务消费者
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePipelineRun, p.HandlePipelineRun)

	log.Printf("Starting Pipeline Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
}

// HandlePipelineRun 取出 run 记录并执行流水线。不同 run 之间完全独立，
// 调用方中途离开（页面跳转等）任务也会继续跑完
func (p *Processor) HandlePipelineRun(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	run, err := models.GetRunByID(p.DB, payload.RunID)
	if err != nil {
		return fmt.Errorf("run not found: %v", err)
	}
	log.Printf("Processing Run: %s", run.ID)

	if run.Status != models.RunStatusPending {
		log.Printf("Run %s 状态为 %s，跳过", run.ID, run.Status)
		return nil
	}

	if err := p.Pipeline.Execute(context.WithoutCancel(ctx), run); err != nil {
		// 业务失败已落库，不触发队列重试
		if errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	return nil
}
