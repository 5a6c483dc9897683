package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
)

// 画幅 -> 输出像素。两种渲染后端共用同一张表
var aspectRatioDimensions = map[string][2]int{
	"16:9": {1280, 720},
	"9:16": {720, 1280},
	"1:1":  {1080, 1080},
	"4:3":  {1024, 768},
}

// ResolveDimensions 未识别的画幅回退 16:9
func ResolveDimensions(aspectRatio string) (width, height int) {
	d, ok := aspectRatioDimensions[aspectRatio]
	if !ok {
		d = aspectRatioDimensions["16:9"]
	}
	return d[0], d[1]
}

// 渲染任务终态
const (
	RenderStatusSucceeded = "succeeded"
	RenderStatusFailed    = "failed"
)

// RenderBackend 渲染后端能力接口。两种实现从相同的分镜数据产出等价成片：
//   - CompositionBackend: 扁平组合列表，可能同步返回 URL
//   - TimelineBackend: 多轨时间线 + 绝对起始偏移，总是需要轮询
type RenderBackend interface {
	// Submit 提交渲染任务；videoURL 非空表示同步完成，否则返回 jobID 轮询
	Submit(ctx context.Context, project *models.Project, scenes []models.Scene) (videoURL, jobID string, err error)
	// Poll 查询任务状态，返回 succeeded/failed/其他中间态
	Poll(ctx context.Context, jobID string) (status, videoURL string, err error)
}

// renderableScenes 过滤出有图像的分镜（素材缺失的分镜不进成片），保持 scene_number 序
func renderableScenes(scenes []models.Scene) []models.Scene {
	var out []models.Scene
	for _, s := range scenes {
		if s.ImageUrl != nil && *s.ImageUrl != "" {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
// 组合列表后端（composition-list）
// ============================================================================

type CompositionBackend struct {
	API        string
	APIKey     string
	HTTPClient *http.Client
}

func NewCompositionBackend() *CompositionBackend {
	cfg := config.AppConfig.Render
	return &CompositionBackend{
		API:        cfg.API,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type compositionElement struct {
	Type     string `json:"type"`
	Source   string `json:"source,omitempty"`
	Track    int    `json:"track,omitempty"`
	Duration int    `json:"duration,omitempty"`

	Elements []compositionElement `json:"elements,omitempty"`
}

type compositionRenderRequest struct {
	OutputFormat string               `json:"output_format"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	Elements     []compositionElement `json:"elements"`
}

// BuildCompositionRequest 每个分镜一个 composition：图像元素 + 可选的同时长音频元素
func BuildCompositionRequest(project *models.Project, scenes []models.Scene) compositionRenderRequest {
	width, height := ResolveDimensions(project.AspectRatio)
	var compositions []compositionElement
	for _, scene := range scenes {
		duration := scene.Duration
		if duration <= 0 {
			duration = 5
		}
		elements := []compositionElement{
			{Type: "image", Source: *scene.ImageUrl, Duration: duration},
		}
		if scene.AudioUrl != nil && *scene.AudioUrl != "" {
			elements = append(elements, compositionElement{Type: "audio", Source: *scene.AudioUrl, Duration: duration})
		}
		compositions = append(compositions, compositionElement{
			Type:     "composition",
			Track:    1,
			Elements: elements,
		})
	}
	return compositionRenderRequest{
		OutputFormat: "mp4",
		Width:        width,
		Height:       height,
		Elements:     compositions,
	}
}

func (b *CompositionBackend) Submit(ctx context.Context, project *models.Project, scenes []models.Scene) (string, string, error) {
	usable := renderableScenes(scenes)
	if len(usable) == 0 {
		return "", "", fmt.Errorf("%w: no renderable scenes", ErrRenderFailed)
	}
	reqBody := BuildCompositionRequest(project, usable)
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("marshal render request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.API+"/v2/renders", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", "", fmt.Errorf("create render request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("渲染提交失败 %d: %s", resp.StatusCode, string(body))
		return "", "", fmt.Errorf("%w: render submit status %d", ErrUpstreamError, resp.StatusCode)
	}

	var data struct {
		URL string `json:"url"`
		ID  string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", "", fmt.Errorf("decode render response failed: %w", err)
	}
	if data.URL != "" {
		// 后端同步返回成片地址，无需轮询
		return data.URL, "", nil
	}
	if data.ID == "" {
		return "", "", fmt.Errorf("%w: render response missing url and id", ErrUpstreamError)
	}
	return "", data.ID, nil
}

func (b *CompositionBackend) Poll(ctx context.Context, jobID string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.API+"/v2/renders/"+jobID, nil)
	if err != nil {
		return "", "", fmt.Errorf("create poll request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: poll status %d", ErrUpstreamError, resp.StatusCode)
	}

	var data struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", "", fmt.Errorf("decode poll response failed: %w", err)
	}
	return data.Status, data.URL, nil
}

// ============================================================================
// 时间线轨道后端（timeline-track）
// ============================================================================

type TimelineBackend struct {
	API        string
	APIKey     string
	HTTPClient *http.Client
}

func NewTimelineBackend() *TimelineBackend {
	cfg := config.AppConfig.Render
	return &TimelineBackend{
		API:        cfg.API,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type timelineAsset struct {
	Type string `json:"type"`
	Src  string `json:"src"`
}

type timelineClip struct {
	Asset  timelineAsset `json:"asset"`
	Start  int           `json:"start"` // 前序分镜时长的累加和
	Length int           `json:"length"`
}

type timelineTrack struct {
	Clips []timelineClip `json:"clips"`
}

type timelineRenderRequest struct {
	Timeline struct {
		Tracks []timelineTrack `json:"tracks"`
	} `json:"timeline"`
	Output struct {
		Format string `json:"format"`
		Size   struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"size"`
	} `json:"output"`
}

// BuildTimelineRequest 视频轨 clip 的 start 是之前所有分镜时长的累加；
// 音频轨用同一偏移规则，但只包含有音频的分镜
func BuildTimelineRequest(project *models.Project, scenes []models.Scene) timelineRenderRequest {
	width, height := ResolveDimensions(project.AspectRatio)

	var videoClips, audioClips []timelineClip
	offset := 0
	for _, scene := range scenes {
		duration := scene.Duration
		if duration <= 0 {
			duration = 5
		}
		videoClips = append(videoClips, timelineClip{
			Asset:  timelineAsset{Type: "image", Src: *scene.ImageUrl},
			Start:  offset,
			Length: duration,
		})
		if scene.AudioUrl != nil && *scene.AudioUrl != "" {
			audioClips = append(audioClips, timelineClip{
				Asset:  timelineAsset{Type: "audio", Src: *scene.AudioUrl},
				Start:  offset,
				Length: duration,
			})
		}
		offset += duration
	}

	var req timelineRenderRequest
	req.Timeline.Tracks = []timelineTrack{{Clips: videoClips}}
	if len(audioClips) > 0 {
		req.Timeline.Tracks = append(req.Timeline.Tracks, timelineTrack{Clips: audioClips})
	}
	req.Output.Format = "mp4"
	req.Output.Size.Width = width
	req.Output.Size.Height = height
	return req
}

func (b *TimelineBackend) Submit(ctx context.Context, project *models.Project, scenes []models.Scene) (string, string, error) {
	usable := renderableScenes(scenes)
	if len(usable) == 0 {
		return "", "", fmt.Errorf("%w: no renderable scenes", ErrRenderFailed)
	}
	reqBody := BuildTimelineRequest(project, usable)
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("marshal render request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.API+"/render", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", "", fmt.Errorf("create render request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.APIKey)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("渲染提交失败 %d: %s", resp.StatusCode, string(body))
		return "", "", fmt.Errorf("%w: render submit status %d", ErrUpstreamError, resp.StatusCode)
	}

	var data struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", "", fmt.Errorf("decode render response failed: %w", err)
	}
	if data.ID == "" {
		return "", "", fmt.Errorf("%w: render response missing id", ErrUpstreamError)
	}
	// 时间线后端没有同步路径，必定轮询
	return "", data.ID, nil
}

func (b *TimelineBackend) Poll(ctx context.Context, jobID string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.API+"/render/"+jobID, nil)
	if err != nil {
		return "", "", fmt.Errorf("create poll request failed: %w", err)
	}
	req.Header.Set("x-api-key", b.APIKey)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: poll status %d", ErrUpstreamError, resp.StatusCode)
	}

	var data struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", "", fmt.Errorf("decode poll response failed: %w", err)
	}
	return data.Status, data.URL, nil
}

// ============================================================================
// 渲染编排
// ============================================================================

// RenderOrchestrator 提交渲染并轮询到终态：5 秒间隔，最多 60 次（约 5 分钟）
type RenderOrchestrator struct {
	Backend      RenderBackend
	PollInterval time.Duration
	MaxAttempts  int
}

// NewRenderOrchestrator 按部署配置选择后端，调用方无感知
func NewRenderOrchestrator() *RenderOrchestrator {
	var backend RenderBackend
	switch config.AppConfig.Render.Backend {
	case "timeline":
		backend = NewTimelineBackend()
	default:
		backend = NewCompositionBackend()
	}
	return &RenderOrchestrator{
		Backend:      backend,
		PollInterval: 5 * time.Second,
		MaxAttempts:  60,
	}
}

// Render 返回成片 URL。轮询终态：succeeded -> URL，failed -> ErrRenderFailed，
// 其他状态继续；超出次数上限 -> ErrRenderTimeout
func (o *RenderOrchestrator) Render(ctx context.Context, project *models.Project, scenes []models.Scene) (string, error) {
	videoURL, jobID, err := o.Submit(ctx, project, scenes)
	if err != nil {
		return "", err
	}
	if videoURL != "" {
		return videoURL, nil
	}
	return o.PollUntilDone(ctx, jobID)
}

func (o *RenderOrchestrator) Submit(ctx context.Context, project *models.Project, scenes []models.Scene) (videoURL, jobID string, err error) {
	videoURL, jobID, err = o.Backend.Submit(ctx, project, scenes)
	if err != nil {
		return "", "", err
	}
	if videoURL != "" {
		log.Printf("渲染同步完成: %s", videoURL)
	} else {
		log.Printf("渲染任务已提交，Job ID: %s，开始轮询结果...", jobID)
	}
	return videoURL, jobID, nil
}

// PollUntilDone 轮询直到终态或超出上限
func (o *RenderOrchestrator) PollUntilDone(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("polling canceled: %w", ctx.Err())
		case <-ticker.C:
		}

		status, url, err := o.Backend.Poll(ctx, jobID)
		if err != nil {
			// 轮询网络错误不立即失败，下一轮继续（仍然消耗一次尝试）
			log.Printf("轮询网络错误(继续): %v", err)
			continue
		}

		switch status {
		case RenderStatusSucceeded:
			if url == "" {
				return "", fmt.Errorf("%w: succeeded without url", ErrRenderFailed)
			}
			return url, nil
		case RenderStatusFailed:
			return "", ErrRenderFailed
		default:
			// 中间状态，继续轮询
		}
	}
	return "", ErrRenderTimeout
}
