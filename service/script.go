package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
)

// 各风格的脚本生成引导语
var styleScriptPrompts = map[string]string{
	models.StyleCinematic:     "Create a dramatic, cinematic video script with epic visuals and professional narration.",
	models.StyleAnime:         "Create an anime-style video script with vibrant visuals and energetic narration.",
	models.StyleVlog:          "Create a casual, personal vlog-style script with authentic and conversational narration.",
	models.StyleRealistic:     "Create a realistic documentary-style script with natural visuals and informative narration.",
	models.StyleAdvertisement: "Create a compelling advertisement script with attention-grabbing visuals and persuasive narration.",
	models.StyleDocumentary:   "Create an educational documentary script with informative visuals and authoritative narration.",
}

// ScenePlan 分镜数量与时长切分结果
type ScenePlan struct {
	SceneCount    int // N = clamp(ceil(duration/7), 3, 8)
	SceneDuration int // 前 N-1 个分镜时长 floor(duration/N)
	LastDuration  int // 最后一个分镜补足余量，保证总和精确等于请求时长
}

// PlanScenes 按 ~7 秒/镜头的节奏切分，分镜数限制在 3-8 之间
func PlanScenes(targetDuration int) ScenePlan {
	n := (targetDuration + 6) / 7 // ceil(duration / 7)
	if n < 3 {
		n = 3
	}
	if n > 8 {
		n = 8
	}
	per := targetDuration / n
	return ScenePlan{
		SceneCount:    n,
		SceneDuration: per,
		LastDuration:  targetDuration - per*(n-1),
	}
}

// ScriptClient 调用文本生成网关，把 prompt + 风格 + 目标时长变成结构化脚本。
// 本层不做任何自动重试，错误分类后交给调用方决定。
type ScriptClient struct {
	Gateway    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewScriptClient() *ScriptClient {
	cfg := config.AppConfig.AI
	return &ScriptClient{
		Gateway: cfg.Gateway,
		APIKey:  cfg.APIKey,
		Model:   cfg.ScriptModel,
		// 生成调用显式设置超时，不依赖传输层默认值
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// buildSystemPrompt 把分镜数量/时长约束写进 system prompt，
// 旁白节奏约束 ~2.5-3 词/秒由生成模型执行，不在本地校验
func (c *ScriptClient) buildSystemPrompt(style string, duration int, plan ScenePlan) string {
	stylePrompt, ok := styleScriptPrompts[style]
	if !ok {
		stylePrompt = styleScriptPrompts[models.StyleCinematic]
	}
	return fmt.Sprintf(`You are a professional video script writer. Create a detailed video script with EXACTLY %d scenes.
%s

CRITICAL REQUIREMENTS:
- Total video MUST be EXACTLY %d seconds total
- Scenes 1-%d: Each EXACTLY %d seconds
- Scene %d: EXACTLY %d seconds
- Narration length MUST match duration: approximately 2.5-3 words per second (e.g., %d seconds = %d-%d words)
- Count your words carefully to match the exact scene duration

Return ONLY a JSON object with this exact structure (no markdown, no explanations):
{
  "title": "Video Title",
  "scenes": [
    {
      "scene_number": 1,
      "description": "Detailed visual description for AI image generation",
      "narration": "Narration text matching the EXACT duration",
      "duration": %d
    },
    ...more scenes with scene %d having duration %d
  ]
}

Make descriptions vivid and specific for AI image generation. Keep narration concise and impactful.`,
		plan.SceneCount, stylePrompt, duration,
		plan.SceneCount-1, plan.SceneDuration,
		plan.SceneCount, plan.LastDuration,
		plan.SceneDuration, plan.SceneDuration*5/2, plan.SceneDuration*3,
		plan.SceneDuration, plan.SceneCount, plan.LastDuration)
}

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseScript 从模型返回内容中提取 JSON（兼容 markdown 代码块包裹），
// 并按切分计划归一化：分镜数必须等于计划值，时长以计划为准，编号重排为 1..N
func ParseScript(content string, plan ScenePlan) (*models.Script, error) {
	jsonStr := content
	if m := jsonFenceRe.FindStringSubmatch(content); m != nil {
		jsonStr = m[1]
	}
	var script models.Script
	if err := json.Unmarshal([]byte(jsonStr), &script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if script.Title == "" || len(script.Scenes) != plan.SceneCount {
		return nil, fmt.Errorf("%w: expected %d scenes, got %d", ErrMalformedOutput, plan.SceneCount, len(script.Scenes))
	}
	for i := range script.Scenes {
		if script.Scenes[i].Description == "" || script.Scenes[i].Narration == "" {
			return nil, fmt.Errorf("%w: scene %d missing description or narration", ErrMalformedOutput, i+1)
		}
		script.Scenes[i].SceneNumber = i + 1
		if i == plan.SceneCount-1 {
			script.Scenes[i].Duration = plan.LastDuration
		} else {
			script.Scenes[i].Duration = plan.SceneDuration
		}
	}
	return &script, nil
}

// Generate 生成脚本。上游 429 -> ErrRateLimited，402 -> ErrQuotaExceeded，
// 其他非 2xx -> ErrUpstreamError，内容解析失败 -> ErrMalformedOutput
func (c *ScriptClient) Generate(ctx context.Context, prompt, style string, duration int) (*models.Script, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	plan := PlanScenes(duration)

	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.buildSystemPrompt(style, duration, plan)},
			{Role: "user", Content: prompt},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Gateway+"/v1/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("脚本生成网关返回 %d: %s", resp.StatusCode, string(body))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case http.StatusPaymentRequired:
			return nil, ErrQuotaExceeded
		default:
			return nil, fmt.Errorf("%w: status %d", ErrUpstreamError, resp.StatusCode)
		}
	}

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedOutput, err)
	}
	if len(data.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrMalformedOutput)
	}

	script, err := ParseScript(data.Choices[0].Message.Content, plan)
	if err != nil {
		log.Printf("脚本解析失败: %v", err)
		return nil, err
	}
	log.Printf("脚本生成成功: %s (%d scenes, %ds)", script.Title, len(script.Scenes), script.TotalDuration())
	return script, nil
}
