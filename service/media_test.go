package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PromptToVideo-server/models"
)

func TestBuildImagePrompt(t *testing.T) {
	prompt := BuildImagePrompt("a red fox in snow", models.StyleAnime, "9:16")
	if !strings.HasPrefix(prompt, "a red fox in snow, ") {
		t.Fatalf("prompt does not lead with description: %q", prompt)
	}
	if !strings.Contains(prompt, "anime style") {
		t.Errorf("missing anime enhancement: %q", prompt)
	}
	if !strings.Contains(prompt, "portrait orientation") || !strings.Contains(prompt, "720x1280") {
		t.Errorf("missing portrait orientation instruction: %q", prompt)
	}
}

func TestBuildImagePromptFallbacks(t *testing.T) {
	// 未知风格回退 realistic，未知画幅回退 16:9
	prompt := BuildImagePrompt("desc", "cubist", "21:9")
	if !strings.Contains(prompt, "photorealistic") {
		t.Errorf("unknown style should fall back to realistic: %q", prompt)
	}
	if !strings.Contains(prompt, "1280x720") {
		t.Errorf("unknown aspect should fall back to 16:9: %q", prompt)
	}
}

func fakeImageResponse(payload string) string {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{
				"images": []map[string]interface{}{
					{"image_url": map[string]string{"url": dataURL}},
				},
			}},
		},
	})
	return string(b)
}

func newTestImageClient(url string) (*ImageClient, *[][]byte) {
	var uploads [][]byte
	c := &ImageClient{
		Gateway:    url,
		APIKey:     "k",
		Model:      "img-model",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Upload: func(data []byte, objectName string) (string, error) {
			uploads = append(uploads, data)
			return "http://oss/" + objectName, nil
		},
	}
	return c, &uploads
}

func TestImageGenerate(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(fakeImageResponse("png-bytes")))
	}))
	defer srv.Close()

	client, uploads := newTestImageClient(srv.URL)
	url, err := client.Generate(context.Background(), "desc", models.StyleCinematic, "16:9", "scene-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if requests != 1 {
		t.Fatalf("landscape made %d requests, want 1", requests)
	}
	if url != "http://oss/scenes/scene-1/image.png" {
		t.Fatalf("url = %q", url)
	}
	if len(*uploads) != 1 || string((*uploads)[0]) != "png-bytes" {
		t.Fatalf("uploaded payload wrong: %v", *uploads)
	}
}

func TestImageGeneratePortraitCorrectivePass(t *testing.T) {
	// 9:16 需要第二轮图像条件修正
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(fakeImageResponse(fmt.Sprintf("pass-%d", requests))))
	}))
	defer srv.Close()

	client, uploads := newTestImageClient(srv.URL)
	_, err := client.Generate(context.Background(), "desc", models.StyleVlog, "9:16", "scene-2")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if requests != 2 {
		t.Fatalf("portrait made %d requests, want 2", requests)
	}
	// 上传的是修正轮的结果
	if string((*uploads)[0]) != "pass-2" {
		t.Fatalf("uploaded %q, want corrective pass output", string((*uploads)[0]))
	}
}

func TestVoiceGenerateDrainsStream(t *testing.T) {
	audio := []byte("RIFFxxxxWAVEfmt chunked-audio-payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 分段写出，模拟流式响应
		flusher := w.(http.Flusher)
		for i := 0; i < len(audio); i += 8 {
			end := i + 8
			if end > len(audio) {
				end = len(audio)
			}
			w.Write(audio[i:end])
			flusher.Flush()
		}
	}))
	defer srv.Close()

	var uploaded []byte
	client := &VoiceClient{
		API:        srv.URL,
		Voice:      "test-voice",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Upload: func(data []byte, objectName string) (string, error) {
			uploaded = data
			return "http://oss/" + objectName, nil
		},
	}
	url, err := client.Generate(context.Background(), "hello world", "scene-3")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if url != "http://oss/scenes/scene-3/audio.wav" {
		t.Fatalf("url = %q", url)
	}
	if string(uploaded) != string(audio) {
		t.Fatalf("stream not fully drained: got %d bytes, want %d", len(uploaded), len(audio))
	}
}

// fakeImageGen / fakeVoiceGen 控制单个素材调用成败
type fakeImageGen struct {
	url string
	err error
}

func (f *fakeImageGen) Generate(ctx context.Context, description, style, aspectRatio, sceneID string) (string, error) {
	return f.url, f.err
}

type fakeVoiceGen struct {
	url string
	err error
}

func (f *fakeVoiceGen) Generate(ctx context.Context, text, sceneID string) (string, error) {
	return f.url, f.err
}

func TestGenerateScenePartialFailure(t *testing.T) {
	// 图像失败、音频成功：分镜仍是 completed，image 为空 audio 有值
	m := &MediaGenerator{
		Images: &fakeImageGen{err: errors.New("boom")},
		Voices: &fakeVoiceGen{url: "http://oss/audio.wav"},
	}
	spec := models.SceneSpec{SceneNumber: 1, Description: "d", Narration: "n", Duration: 6}
	media := m.GenerateScene(context.Background(), spec, "cinematic", "16:9", "s1")

	if media.Status != models.SceneStatusCompleted {
		t.Fatalf("status = %q, want completed", media.Status)
	}
	if media.ImageUrl != nil {
		t.Errorf("image url should be absent")
	}
	if media.AudioUrl == nil || *media.AudioUrl != "http://oss/audio.wav" {
		t.Errorf("audio url missing")
	}
}

func TestGenerateSceneBothFail(t *testing.T) {
	m := &MediaGenerator{
		Images: &fakeImageGen{err: errors.New("img down")},
		Voices: &fakeVoiceGen{err: errors.New("tts down")},
	}
	spec := models.SceneSpec{SceneNumber: 2, Description: "d", Narration: "n", Duration: 6}
	media := m.GenerateScene(context.Background(), spec, "cinematic", "16:9", "s2")

	if media.Status != models.SceneStatusFailed {
		t.Fatalf("status = %q, want failed", media.Status)
	}
	if media.ImageUrl != nil || media.AudioUrl != nil {
		t.Errorf("failed scene should have no media urls")
	}
}

func TestGenerateSceneBothSucceed(t *testing.T) {
	m := &MediaGenerator{
		Images: &fakeImageGen{url: "http://oss/i.png"},
		Voices: &fakeVoiceGen{url: "http://oss/a.wav"},
	}
	spec := models.SceneSpec{SceneNumber: 3, Description: "d", Narration: "n", Duration: 6}
	media := m.GenerateScene(context.Background(), spec, "anime", "1:1", "s3")

	if media.Status != models.SceneStatusCompleted || media.ImageUrl == nil || media.AudioUrl == nil {
		t.Fatalf("unexpected media: %+v", media)
	}
}
