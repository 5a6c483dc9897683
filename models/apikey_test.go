package models

import (
	"regexp"
	"strings"
	"testing"
)

func TestHashAPIKey(t *testing.T) {
	h1 := HashAPIKey("sk_abc")
	h2 := HashAPIKey("sk_abc")
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("hash length %d, want 64 hex chars", len(h1))
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(h1) {
		t.Fatalf("hash not lowercase hex: %q", h1)
	}
	if HashAPIKey("sk_abd") == h1 {
		t.Fatalf("different keys produced the same hash")
	}
	// 已知向量：空串的 SHA-256
	if got := HashAPIKey(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("HashAPIKey(\"\") = %q", got)
	}
}

func TestGenerateRawAPIKey(t *testing.T) {
	raw, err := GenerateRawAPIKey()
	if err != nil {
		t.Fatalf("GenerateRawAPIKey: %v", err)
	}
	if !strings.HasPrefix(raw, "sk_") {
		t.Fatalf("key missing sk_ prefix: %q", raw)
	}
	// sk_ + 32 字节的十六进制
	if len(raw) != 3+64 {
		t.Fatalf("key length %d, want 67", len(raw))
	}
	other, _ := GenerateRawAPIKey()
	if raw == other {
		t.Fatalf("two generated keys are identical")
	}
}

func TestPreviewAPIKey(t *testing.T) {
	raw := "sk_0123456789abcdef0123456789abcdef"
	preview := PreviewAPIKey(raw)
	if preview != "sk_012345678...cdef" {
		t.Fatalf("preview = %q", preview)
	}
	if strings.Contains(preview, raw[12:len(raw)-4]) {
		t.Fatalf("preview leaks key body")
	}
	// 短串原样返回，不做截断
	if got := PreviewAPIKey("sk_short"); got != "sk_short" {
		t.Fatalf("short key preview = %q", got)
	}
}
