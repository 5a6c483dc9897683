package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPlanScenes(t *testing.T) {
	cases := []struct {
		duration int
		wantN    int
		wantPer  int
		wantLast int
	}{
		{30, 5, 6, 6},    // ceil(30/7)=5，均匀切分
		{65, 8, 8, 9},    // ceil(65/7)=10 -> clamp 8，最后一镜补足余量
		{10, 3, 3, 4},    // 短视频下限 3 镜
		{120, 8, 15, 15}, // 长视频上限 8 镜
		{21, 3, 7, 7},
	}
	for _, tc := range cases {
		plan := PlanScenes(tc.duration)
		if plan.SceneCount != tc.wantN || plan.SceneDuration != tc.wantPer || plan.LastDuration != tc.wantLast {
			t.Errorf("PlanScenes(%d) = {%d, %d, %d}, want {%d, %d, %d}",
				tc.duration, plan.SceneCount, plan.SceneDuration, plan.LastDuration,
				tc.wantN, tc.wantPer, tc.wantLast)
		}
	}
}

func TestPlanScenesSumExact(t *testing.T) {
	// 任意时长下分镜数在 [3,8]，时长之和精确等于请求值
	for d := 1; d <= 300; d++ {
		plan := PlanScenes(d)
		if plan.SceneCount < 3 || plan.SceneCount > 8 {
			t.Fatalf("duration %d: scene count %d out of [3,8]", d, plan.SceneCount)
		}
		sum := plan.SceneDuration*(plan.SceneCount-1) + plan.LastDuration
		if sum != d {
			t.Fatalf("duration %d: durations sum to %d", d, sum)
		}
	}
}

func scriptJSON(n, per, last int) string {
	type scene struct {
		SceneNumber int    `json:"scene_number"`
		Description string `json:"description"`
		Narration   string `json:"narration"`
		Duration    int    `json:"duration"`
	}
	scenes := make([]scene, n)
	for i := range scenes {
		d := per
		if i == n-1 {
			d = last
		}
		scenes[i] = scene{
			SceneNumber: i + 1,
			Description: fmt.Sprintf("scene %d visual", i+1),
			Narration:   fmt.Sprintf("scene %d narration", i+1),
			Duration:    d,
		}
	}
	b, _ := json.Marshal(map[string]interface{}{
		"title":  "Test Video",
		"scenes": scenes,
	})
	return string(b)
}

func TestParseScript(t *testing.T) {
	plan := PlanScenes(30)

	script, err := ParseScript(scriptJSON(5, 6, 6), plan)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if script.Title != "Test Video" || len(script.Scenes) != 5 {
		t.Fatalf("unexpected script: %+v", script)
	}
	if script.TotalDuration() != 30 {
		t.Fatalf("total duration %d, want 30", script.TotalDuration())
	}
	for i, s := range script.Scenes {
		if s.SceneNumber != i+1 {
			t.Errorf("scene %d numbered %d", i, s.SceneNumber)
		}
	}
}

func TestParseScriptMarkdownFence(t *testing.T) {
	plan := PlanScenes(30)
	content := "```json\n" + scriptJSON(5, 6, 6) + "\n```"
	if _, err := ParseScript(content, plan); err != nil {
		t.Fatalf("fenced content should parse: %v", err)
	}
}

func TestParseScriptNormalizesDurations(t *testing.T) {
	// 模型返回的时长不可信，以切分计划为准
	plan := PlanScenes(30)
	script, err := ParseScript(scriptJSON(5, 9, 9), plan)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if script.TotalDuration() != 30 {
		t.Fatalf("durations not normalized, sum %d", script.TotalDuration())
	}
	if script.Scenes[4].Duration != 6 {
		t.Fatalf("last scene duration %d, want 6", script.Scenes[4].Duration)
	}
}

func TestParseScriptMalformed(t *testing.T) {
	plan := PlanScenes(30)
	cases := []string{
		"not json at all",
		`{"title":"x","scenes":[]}`, // 分镜数不符
		scriptJSON(4, 6, 6),         // 少一个分镜
		`{"title":"","scenes":[]}`,  // 缺标题
	}
	for _, content := range cases {
		if _, err := ParseScript(content, plan); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ParseScript(%.30q) err = %v, want ErrMalformedOutput", content, err)
		}
	}
}

func newTestScriptClient(url string) *ScriptClient {
	return &ScriptClient{
		Gateway:    url,
		APIKey:     "test-key",
		Model:      "test-model",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestScriptGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": scriptJSON(5, 6, 6)}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	script, err := newTestScriptClient(srv.URL).Generate(context.Background(), "a cat boxing match", "cinematic", 30)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(script.Scenes) != 5 || script.TotalDuration() != 30 {
		t.Fatalf("unexpected script: %d scenes, %ds", len(script.Scenes), script.TotalDuration())
	}
}

func TestScriptGenerateErrorClasses(t *testing.T) {
	cases := []struct {
		status  int
		wantErr error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusPaymentRequired, ErrQuotaExceeded},
		{http.StatusInternalServerError, ErrUpstreamError},
		{http.StatusBadGateway, ErrUpstreamError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":"upstream says no"}`))
		}))
		_, err := newTestScriptClient(srv.URL).Generate(context.Background(), "prompt", "anime", 30)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.wantErr)
		}
		srv.Close()
	}
}

func TestScriptGenerateMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "sorry, I cannot do that"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	_, err := newTestScriptClient(srv.URL).Generate(context.Background(), "prompt", "vlog", 30)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}
