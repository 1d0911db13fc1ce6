package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"webui/internal/domain"
	"webui/internal/imaging"
	"webui/internal/infra"
)

// UploadJPEGQuality is the quality of the temporary upload file.
const UploadJPEGQuality = 90

// Uploader publishes a local image to the image host and returns its URL.
type Uploader struct {
	url     string
	client  *http.Client
	tempDir string
	timeout time.Duration
	logger  *infra.Logger
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data"`
	Message string `json:"message"`
}

// Upload writes img to a temporary JPEG, posts it as multipart field "file"
// and removes the file on every exit path.
func (u *Uploader) Upload(ctx context.Context, img image.Image) (string, error) {
	path, err := u.writeTemp(img)
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			u.logger.Warn().Err(err).Str("path", path).Msg("modelscope: remove temp upload")
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.Wrap(domain.KindUploadFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.Failure{Kind: domain.KindUploadFailed, Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &domain.Failure{Kind: domain.KindUploadFailed, Detail: strings.TrimSpace(string(raw)), Err: err}
	}
	if !decoded.Success {
		msg := decoded.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return "", domain.Fail(domain.KindUploadFailed, msg)
	}
	if strings.TrimSpace(decoded.Data) == "" {
		return "", domain.Fail(domain.KindUploadFailed, "empty image url")
	}
	u.logger.Debug().Str("url", decoded.Data).Msg("modelscope: image uploaded")
	return strings.TrimSpace(decoded.Data), nil
}

func (u *Uploader) writeTemp(img image.Image) (string, error) {
	data, err := imaging.EncodeJPEG(img, UploadJPEGQuality)
	if err != nil {
		return "", err
	}
	dir := u.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "webui-upload-"+uuid.NewString()+".jpg")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp upload: %w", err)
	}
	return path, nil
}
