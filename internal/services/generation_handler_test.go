package services

import (
	"strings"
	"testing"

	"sorabroker/internal/apperr"
)

func TestParseModel_ClosedTable(t *testing.T) {
	tests := []struct {
		model       string
		wantKind    ModelKind
		orientation string
		nFrames     int
	}{
		{"sora-image", ModelKindImage, "landscape", 0},
		{"sora-image-landscape", ModelKindImage, "landscape", 0},
		{"sora-image-portrait", ModelKindImage, "portrait", 0},
		{"sora-video-landscape-10s", ModelKindVideo, "landscape", 300},
		{"sora-video-landscape-15s", ModelKindVideo, "landscape", 450},
		{"sora-video-portrait-10s", ModelKindVideo, "portrait", 300},
		{"sora-video-portrait-15s", ModelKindVideo, "portrait", 450},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			cfg, err := ParseModel(tt.model)
			if err != nil {
				t.Fatalf("ParseModel(%s) returned error: %v", tt.model, err)
			}
			if cfg.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", cfg.Kind, tt.wantKind)
			}
			if cfg.Orientation != tt.orientation {
				t.Errorf("Orientation = %v, want %v", cfg.Orientation, tt.orientation)
			}
			if cfg.NFrames != tt.nFrames {
				t.Errorf("NFrames = %v, want %v", cfg.NFrames, tt.nFrames)
			}
		})
	}
}

func TestParseModel_Unknown(t *testing.T) {
	_, err := ParseModel("gpt-4")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	kind, ok := apperr.KindOf(err)
	if !ok || kind != apperr.KindInvalidModel {
		t.Errorf("expected KindInvalidModel, got %v (ok=%v)", kind, ok)
	}
}

func TestCleanRemixPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "strips share url",
			prompt: "make it brighter https://sora.chatgpt.com/p/s_0123456789abcdef0123456789abcdef please",
			want:   "make it brighter please",
		},
		{
			name:   "strips bare remix id",
			prompt: "remix s_0123456789abcdef0123456789abcdef with more rain",
			want:   "remix with more rain",
		},
		{
			name:   "leaves plain prompt untouched",
			prompt: "a cat riding a skateboard",
			want:   "a cat riding a skateboard",
		},
		{
			name:   "collapses extra whitespace left behind",
			prompt: "  add   rain   ",
			want:   "add rain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanRemixPrompt(tt.prompt); got != tt.want {
				t.Errorf("cleanRemixPrompt(%q) = %q, want %q", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestDeriveCharacterUsername(t *testing.T) {
	tests := []struct {
		name         string
		usernameHint string
		fallback     string
		prefix       string
	}{
		{"uses segment after last dot", "blackwill.meowliusma68", "fallback-id", "meowliusma68"},
		{"falls back when hint is empty", "", "cameo-123", "cameo-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveCharacterUsername(tt.usernameHint, tt.fallback)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("deriveCharacterUsername(%q, %q) = %q, want prefix %q", tt.usernameHint, tt.fallback, got, tt.prefix)
			}
			suffix := got[len(tt.prefix):]
			if len(suffix) != 3 {
				t.Errorf("expected 3-digit suffix, got %q (from %q)", suffix, got)
			}
		})
	}
}

func TestFormatResultAsMarkdown(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		got := FormatResultAsMarkdown(nil, false)
		if got != "生成失败，未获取到结果" {
			t.Errorf("unexpected message for nil result: %q", got)
		}
	})

	t.Run("error result", func(t *testing.T) {
		got := FormatResultAsMarkdown(&GenerationResult{Error: "upstream timeout"}, false)
		if !strings.Contains(got, "upstream timeout") {
			t.Errorf("expected error text in output, got %q", got)
		}
	})

	t.Run("image urls render as markdown images", func(t *testing.T) {
		got := FormatResultAsMarkdown(&GenerationResult{URLs: []string{"https://cache/a.png", "https://cache/b.png"}}, false)
		if !strings.Contains(got, "![Generated Image 1](https://cache/a.png)") {
			t.Errorf("missing first image markdown, got %q", got)
		}
		if !strings.Contains(got, "![Generated Image 2](https://cache/b.png)") {
			t.Errorf("missing second image markdown, got %q", got)
		}
	})

	t.Run("video urls render as html video tags", func(t *testing.T) {
		got := FormatResultAsMarkdown(&GenerationResult{URLs: []string{"https://cache/a.mp4"}}, true)
		if !strings.Contains(got, `<video src="https://cache/a.mp4" controls></video>`) {
			t.Errorf("missing video tag, got %q", got)
		}
	})
}
