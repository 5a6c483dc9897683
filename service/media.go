package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
)

// 各风格的生图提示词增强后缀
var styleImageEnhancements = map[string]string{
	models.StyleCinematic:     "cinematic lighting, film grain, anamorphic lens, epic composition, professional color grading",
	models.StyleAnime:         "anime style, vibrant colors, manga art style, detailed linework, Studio Ghibli quality",
	models.StyleVlog:          "natural lighting, casual photography, authentic moment, street photography style",
	models.StyleRealistic:     "photorealistic, natural lighting, high detail, professional photography",
	models.StyleAdvertisement: "commercial photography, perfect lighting, product showcase, professional marketing",
	models.StyleDocumentary:   "documentary photography, natural setting, authentic moment, National Geographic style",
}

// 画幅 -> 朝向指令。生图模型不接受数值画幅参数，只能用自然语言引导
var aspectOrientationPrompts = map[string]string{
	"16:9": "wide landscape orientation, 1280x720 aspect ratio",
	"9:16": "tall portrait orientation, vertical framing, 720x1280 aspect ratio",
	"1:1":  "square orientation, 1080x1080 aspect ratio",
	"4:3":  "classic landscape orientation, 1024x768 aspect ratio",
}

// BuildImagePrompt 描述 + 风格增强 + 朝向指令拼成最终生图提示词
func BuildImagePrompt(description, style, aspectRatio string) string {
	enhancement, ok := styleImageEnhancements[style]
	if !ok {
		enhancement = styleImageEnhancements[models.StyleRealistic]
	}
	orientation, ok := aspectOrientationPrompts[aspectRatio]
	if !ok {
		orientation = aspectOrientationPrompts["16:9"]
	}
	return fmt.Sprintf("%s, %s, %s, 4K, high quality, detailed", description, enhancement, orientation)
}

// ImageGenerator / VoiceGenerator 供流水线和测试替换具体实现
type ImageGenerator interface {
	Generate(ctx context.Context, description, style, aspectRatio, sceneID string) (string, error)
}

type VoiceGenerator interface {
	Generate(ctx context.Context, text, sceneID string) (string, error)
}

// ============================================================================
// 图像生成
// ============================================================================

// ImageClient 调用生图网关。返回的是内嵌 base64 图像（不是 URL），
// 本层负责解码并转存到对象存储，对外只暴露可访问 URL。
type ImageClient struct {
	Gateway    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	// 上传入口，默认走 MinIO，测试中可替换
	Upload func(data []byte, objectName string) (string, error)
}

func NewImageClient() *ImageClient {
	cfg := config.AppConfig.AI
	return &ImageClient{
		Gateway:    cfg.Gateway,
		APIKey:     cfg.APIKey,
		Model:      cfg.ImageModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Upload:     UploadBytesToMinIO,
	}
}

// requestImage 发送一次生图请求，content 可以是纯文本，也可以是
// 文本 + 图像的修正请求（图像条件编辑）
func (c *ImageClient) requestImage(ctx context.Context, content interface{}) (string, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "user", Content: content},
		},
		Modalities: []string{"image", "text"},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Gateway+"/v1/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("生图网关返回 %d: %s", resp.StatusCode, string(body))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return "", ErrRateLimited
		case http.StatusPaymentRequired:
			return "", ErrQuotaExceeded
		default:
			return "", fmt.Errorf("%w: status %d", ErrUpstreamError, resp.StatusCode)
		}
	}

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if len(data.Choices) == 0 || len(data.Choices[0].Message.Images) == 0 {
		return "", fmt.Errorf("no image generated")
	}
	return data.Choices[0].Message.Images[0].ImageURL.URL, nil
}

// decodeDataURL 解析 "data:image/png;base64,..." 形式的内嵌图像
func decodeDataURL(dataURL string) ([]byte, error) {
	idx := strings.Index(dataURL, ",")
	if idx < 0 {
		return nil, fmt.Errorf("invalid data url")
	}
	return base64.StdEncoding.DecodeString(dataURL[idx+1:])
}

// Generate 生成单个分镜图像并转存 MinIO。9:16 竖屏首轮大概率返回横构图，
// 追加一轮图像条件修正强制竖裁
func (c *ImageClient) Generate(ctx context.Context, description, style, aspectRatio, sceneID string) (string, error) {
	prompt := BuildImagePrompt(description, style, aspectRatio)
	dataURL, err := c.requestImage(ctx, prompt)
	if err != nil {
		return "", err
	}

	if aspectRatio == "9:16" {
		// 修正轮：带上首轮图像，要求按竖屏重新构图
		corrective := []map[string]interface{}{
			{"type": "text", "text": "Recompose this exact image into tall portrait orientation, vertical 9:16 framing, 720x1280. Crop or extend the scene as needed, keep the subject centered."},
			{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		}
		fixedURL, err := c.requestImage(ctx, corrective)
		if err != nil {
			// 修正失败不致命，退回首轮结果
			log.Printf("竖屏修正轮失败，使用首轮图像: %v", err)
		} else {
			dataURL = fixedURL
		}
	}

	imageBytes, err := decodeDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("decode image failed: %w", err)
	}

	objectName := fmt.Sprintf("scenes/%s/image.png", sceneID)
	return c.Upload(imageBytes, objectName)
}

// ============================================================================
// 语音生成 (TTS)
// ============================================================================

// VoiceClient 调用 TTS 服务，响应是流式 WAV，必须读完整个流再上传，
// 否则会得到截断的音频
type VoiceClient struct {
	API        string
	Voice      string
	HTTPClient *http.Client
	Upload     func(data []byte, objectName string) (string, error)
}

func NewVoiceClient() *VoiceClient {
	cfg := config.AppConfig.AI
	return &VoiceClient{
		API:        cfg.VoiceAPI,
		Voice:      cfg.Voice,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Upload:     UploadBytesToMinIO,
	}
}

func (c *VoiceClient) Generate(ctx context.Context, text, sceneID string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	reqBody := map[string]string{
		"text":  text,
		"voice": c.Voice,
	}
	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.API+"/tts", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: tts status %d", ErrUpstreamError, resp.StatusCode)
	}

	// 读完整个流（部分读取会产生截断音频）
	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("drain tts stream failed: %w", err)
	}
	if len(audioBytes) == 0 {
		return "", fmt.Errorf("empty audio stream")
	}

	objectName := fmt.Sprintf("scenes/%s/audio.wav", sceneID)
	return c.Upload(audioBytes, objectName)
}

// ============================================================================
// 分镜素材编排
// ============================================================================

// SceneMedia 单个分镜的素材生成结果，图像与音频各自可缺失
type SceneMedia struct {
	ImageUrl *string
	AudioUrl *string
	Status   string // completed | failed
}

// MediaGenerator 逐分镜生成素材：镜头之间严格串行，单镜头内
// 图像与语音并发（单镜位最多 2 个在途调用，控制上游突发压力）
type MediaGenerator struct {
	Images ImageGenerator
	Voices VoiceGenerator
}

func NewMediaGenerator() *MediaGenerator {
	return &MediaGenerator{
		Images: NewImageClient(),
		Voices: NewVoiceClient(),
	}
}

// GenerateScene 为单个分镜并发生成图像与语音。两个调用本身都抛错时
// 分镜才算 failed；只要有一个成功就是 completed，缺失的素材留空
func (m *MediaGenerator) GenerateScene(ctx context.Context, spec models.SceneSpec, style, aspectRatio, sceneID string) SceneMedia {
	var (
		wg                 sync.WaitGroup
		imageURL, audioURL string
		imageErr, audioErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		imageURL, imageErr = m.Images.Generate(ctx, spec.Description, style, aspectRatio, sceneID)
	}()
	go func() {
		defer wg.Done()
		audioURL, audioErr = m.Voices.Generate(ctx, spec.Narration, sceneID)
	}()
	wg.Wait()

	if imageErr != nil {
		log.Printf("分镜 %d 图像生成失败: %v", spec.SceneNumber, imageErr)
	}
	if audioErr != nil {
		log.Printf("分镜 %d 语音生成失败: %v", spec.SceneNumber, audioErr)
	}

	media := SceneMedia{Status: models.SceneStatusCompleted}
	if imageErr == nil {
		media.ImageUrl = &imageURL
	}
	if audioErr == nil {
		media.AudioUrl = &audioURL
	}
	if imageErr != nil && audioErr != nil {
		media.Status = models.SceneStatusFailed
	}
	return media
}
