// Package i18n holds the user-facing status strings and picks the locale a
// request is answered in.
package i18n

import (
	"context"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text.
const (
	MsgMissingCredential = "Please provide a valid API token"
	MsgMissingImage      = "Please upload an image first"
	MsgInvalidSize       = "Invalid output size: %s"
	MsgUploadFailed      = "Image upload failed: %s"
	MsgNetworkFailure    = "API request failed: network problem"
	MsgSubmissionFailed  = "API request failed: %d, %s"
	MsgMalformedResponse = "Unexpected API response: %s"
	MsgPollTimeout       = "Task polling timed out, please retry later"
	MsgJobFailed         = "Task failed: %s"
	MsgEmptyResult       = "Task succeeded but produced no image"
	MsgDownloadFailed    = "Image download failed: %d"
	MsgUnexpected        = "Processing error: %s"
	MsgGenerated         = "Image generated! Task ID: %s"
	MsgEdited            = "Image edited! Task ID: %s, size: %s"
	MsgImageInfo         = "Size: %s × %s px"
	MsgNoImage           = "No image"
	MsgChatUnavailable   = "Chat client is not available, check CHAT_BASE_URL"
	MsgChatFailed        = "Chat failed: %s"
	MsgVisionEmpty       = "The API returned an empty response, check that the model supports image analysis"
	MsgVisionFailed      = "Image analysis failed: %s"
	MsgTokenSaved        = "✅ API token saved to the local encrypted file"
	MsgTokenSaveFailed   = "❌ Failed to save API token"
	MsgTokenDeleted      = "🗑️ API token deleted"
	MsgUnknownError      = "Unknown error"
)

var chinese = map[string]string{
	MsgMissingCredential: "请提供有效的API Token",
	MsgMissingImage:      "请先上传图像",
	MsgInvalidSize:       "无效的输出尺寸: %s",
	MsgUploadFailed:      "图片上传失败: %s",
	MsgNetworkFailure:    "API请求失败: 网络连接问题",
	MsgSubmissionFailed:  "API请求失败: %d, %s",
	MsgMalformedResponse: "API响应格式错误: %s",
	MsgPollTimeout:       "任务轮询超时，请稍后重试",
	MsgJobFailed:         "任务失败: %s",
	MsgEmptyResult:       "任务成功但无输出图像",
	MsgDownloadFailed:    "图片下载失败: %d",
	MsgUnexpected:        "处理过程中发生错误: %s",
	MsgGenerated:         "图像生成成功！任务ID: %s",
	MsgEdited:            "图像编辑成功！任务ID: %s, 尺寸: %s",
	MsgImageInfo:         "尺寸: %s × %s 像素",
	MsgNoImage:           "无图像",
	MsgChatUnavailable:   "对话客户端不可用，请检查 CHAT_BASE_URL 配置",
	MsgChatFailed:        "对话失败: %s",
	MsgVisionEmpty:       "API返回了空的响应，请检查模型是否支持图像分析功能",
	MsgVisionFailed:      "图像分析失败: %s",
	MsgTokenSaved:        "✅ API Token已保存到本地加密文件",
	MsgTokenSaveFailed:   "❌ API Token保存失败",
	MsgTokenDeleted:      "🗑️ API Token已删除",
	MsgUnknownError:      "Unknown error",
}

var supported = []language.Tag{language.English, language.Chinese}

var matcher = language.NewMatcher(supported)

func init() {
	for key, text := range chinese {
		if err := message.SetString(language.Chinese, key, text); err != nil {
			panic(err)
		}
	}
}

// Match picks the best supported locale for the given preferences, in order.
// Each preference may be a bare tag or a full Accept-Language header. Blank
// and unparsable preferences are skipped; with no usable preference the
// result is English.
func Match(prefs ...string) language.Tag {
	for _, pref := range prefs {
		pref = strings.TrimSpace(pref)
		if pref == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(pref)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, index, confidence := matcher.Match(tags...)
		if confidence == language.No {
			continue
		}
		return supported[index]
	}
	return language.English
}

type localeKey struct{}

// WithLocale stores the answer locale on ctx.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, tag)
}

// LocaleFromContext returns the answer locale, English when none was set.
func LocaleFromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(localeKey{}).(language.Tag); ok {
		return tag
	}
	return language.English
}

// Printer returns a printer for tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// FromContext returns a printer for the locale stored on ctx.
func FromContext(ctx context.Context) *message.Printer {
	return Printer(LocaleFromContext(ctx))
}
