package jsoncfg

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DefaultModel               = "Qwen/Qwen-Image"
	DefaultEditModel           = "Qwen/Qwen-Image-Edit"
	DefaultTextModel           = "Qwen/Qwen3-Coder-480B-A35B-Instruct"
	DefaultVisionModel         = "stepfun-ai/step3"
	DefaultTimeoutSeconds      = 720
	DefaultDownloadTimeoutSecs = 30
	DefaultStatusTimeoutSecs   = 30
	DefaultPrompt              = "A beautiful landscape"
	DefaultSystemPrompt        = "You are a helpful assistant."
	DefaultEditPrompt          = "修改图片中的内容"
	DefaultVisionPrompt        = "请详细描述这幅图像的内容"
	DefaultLongEdge            = 1024
	DefaultChatMaxTokens       = 2000
	DefaultVisionMaxTokens     = 1000
	DefaultTemperature         = 0.7
)

// Settings is the JSON settings document read at startup.
type Settings struct {
	DefaultModel          string   `json:"default_model"`
	Timeout               float64  `json:"timeout"`
	ImageDownloadTimeout  float64  `json:"image_download_timeout"`
	StatusTimeout         float64  `json:"status_timeout"`
	DefaultPrompt         string   `json:"default_prompt"`
	DefaultNegativePrompt string   `json:"default_negative_prompt"`
	DefaultWidth          int      `json:"default_width"`
	DefaultHeight         int      `json:"default_height"`
	DefaultSteps          int      `json:"default_steps"`
	DefaultGuidance       float64  `json:"default_guidance"`
	DefaultSeed           int      `json:"default_seed"`
	ImageModels           []string `json:"image_models"`
	ImageEditModels       []string `json:"image_edit_models"`
	TextModels            []string `json:"text_models"`
	VisionModels          []string `json:"vision_models"`
	DefaultTextModel      string   `json:"default_text_model"`
	DefaultSystemPrompt   string   `json:"default_system_prompt"`
}

// Defaults returns the settings used when no document is available.
func Defaults() Settings {
	return Settings{
		DefaultModel:         DefaultModel,
		Timeout:              DefaultTimeoutSeconds,
		ImageDownloadTimeout: DefaultDownloadTimeoutSecs,
		StatusTimeout:        DefaultStatusTimeoutSecs,
		DefaultPrompt:        DefaultPrompt,
		DefaultWidth:         512,
		DefaultHeight:        512,
		DefaultSteps:         30,
		DefaultGuidance:      7.5,
		DefaultSeed:          -1,
		ImageModels:          []string{DefaultModel},
		ImageEditModels:      []string{DefaultEditModel},
		TextModels:           []string{DefaultTextModel},
		VisionModels:         []string{DefaultVisionModel},
		DefaultTextModel:     DefaultTextModel,
		DefaultSystemPrompt:  DefaultSystemPrompt,
	}
}

// Load reads the settings document at path. Missing keys keep their defaults.
// On a missing or unparsable file the defaults are returned together with the
// error so the caller can log it.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), fmt.Errorf("jsoncfg: read settings: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a settings document on top of the defaults.
func Parse(raw []byte) (Settings, error) {
	s := Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return Defaults(), fmt.Errorf("jsoncfg: parse settings: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Normalize restores defaults for values the document blanked out.
func (s *Settings) Normalize() {
	d := Defaults()
	if strings.TrimSpace(s.DefaultModel) == "" {
		s.DefaultModel = d.DefaultModel
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.ImageDownloadTimeout <= 0 {
		s.ImageDownloadTimeout = d.ImageDownloadTimeout
	}
	if s.StatusTimeout <= 0 {
		s.StatusTimeout = d.StatusTimeout
	}
	if s.DefaultWidth <= 0 {
		s.DefaultWidth = d.DefaultWidth
	}
	if s.DefaultHeight <= 0 {
		s.DefaultHeight = d.DefaultHeight
	}
	if s.DefaultSteps <= 0 {
		s.DefaultSteps = d.DefaultSteps
	}
	if len(s.ImageModels) == 0 {
		s.ImageModels = []string{s.DefaultModel}
	}
	if len(s.ImageEditModels) == 0 {
		s.ImageEditModels = d.ImageEditModels
	}
	if len(s.TextModels) == 0 {
		s.TextModels = d.TextModels
	}
	if len(s.VisionModels) == 0 {
		s.VisionModels = d.VisionModels
	}
	if strings.TrimSpace(s.DefaultTextModel) == "" {
		s.DefaultTextModel = s.TextModels[0]
	}
	if strings.TrimSpace(s.DefaultSystemPrompt) == "" {
		s.DefaultSystemPrompt = d.DefaultSystemPrompt
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// RequestTimeout bounds each submission attempt.
func (s Settings) RequestTimeout() time.Duration { return seconds(s.Timeout) }

// DownloadTimeout bounds the artifact download.
func (s Settings) DownloadTimeout() time.Duration { return seconds(s.ImageDownloadTimeout) }

// StatusRequestTimeout bounds each status poll attempt.
func (s Settings) StatusRequestTimeout() time.Duration { return seconds(s.StatusTimeout) }

// EditModel returns the default model for the edit workflow.
func (s Settings) EditModel() string {
	if len(s.ImageEditModels) > 0 && s.ImageEditModels[0] != "" {
		return s.ImageEditModels[0]
	}
	return DefaultEditModel
}

// VisionModel returns the default model for image description.
func (s Settings) VisionModel() string {
	if len(s.VisionModels) > 0 && s.VisionModels[0] != "" {
		return s.VisionModels[0]
	}
	return DefaultVisionModel
}
