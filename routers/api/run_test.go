package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PromptToVideo-server/models"

	"github.com/gorilla/websocket"
)

func wsTestServer(t *testing.T, fetch func() (*models.Run, error)) (*httptest.Server, chan struct{}) {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		pushRunProgress(conn, 10*time.Millisecond, fetch)
		close(done)
	}))
	return srv, done
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// 客户端收到首条快照后直接断开：运行永不终态，推送循环也必须退出
func TestPushRunProgressStopsWhenClientGone(t *testing.T) {
	stalled := &models.Run{ID: "run-1", Status: models.RunStatusProcessing, Step: models.StepPollingRender, Progress: 95}
	srv, done := wsTestServer(t, func() (*models.Run, error) {
		return stalled, nil
	})
	defer srv.Close()

	conn := dialWS(t, srv)
	var first models.Run
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Step != models.StepPollingRender {
		t.Fatalf("initial snapshot step %q", first.Step)
	}
	conn.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("push loop still alive after client disconnect")
	}
}

// 进度变化推送，终态推送后服务端关闭连接
func TestPushRunProgressTerminalClosesConnection(t *testing.T) {
	calls := 0
	srv, done := wsTestServer(t, func() (*models.Run, error) {
		calls++
		if calls <= 1 {
			return &models.Run{ID: "run-2", Status: models.RunStatusProcessing, Step: models.StepGeneratingMedia, Progress: 60}, nil
		}
		return &models.Run{ID: "run-2", Status: models.RunStatusSuccess, Step: models.StepCompleted, Progress: 100, VideoUrl: "http://video/final.mp4"}, nil
	})
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var last models.Run
	for {
		var cur models.Run
		if err := conn.ReadJSON(&cur); err != nil {
			break
		}
		last = cur
	}
	if last.Status != models.RunStatusSuccess || last.Progress != 100 {
		t.Fatalf("last pushed snapshot: %+v", last)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("push loop did not exit on terminal status")
	}
}
