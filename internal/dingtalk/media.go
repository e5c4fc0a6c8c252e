// ABOUTME: Media upload helper and the guidance prompt that teaches the
// ABOUTME: model to upload images before referencing them in replies

package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MediaHelper uploads media files and builds the system prompt that walks
// the model through doing the same with curl.
type MediaHelper struct {
	oapiBase string
	tokens   tokenProvider
	client   *http.Client
	logger   *slog.Logger
}

// NewMediaHelper creates a media helper against the legacy open-platform
// host.
func NewMediaHelper(oapiBase string, tokens tokenProvider, logger *slog.Logger) *MediaHelper {
	return &MediaHelper{
		oapiBase: strings.TrimSuffix(oapiBase, "/"),
		tokens:   tokens,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// mediaPromptFormat takes the upload URL twice. DingTalk chats only render
// images that were uploaded to the platform first, so the model has to run
// the upload itself and reference the returned media_id.
const mediaPromptFormat = "## DingTalk image display rules (mandatory)\n" +
	"\n" +
	"You are chatting with the user inside DingTalk. DingTalk **only renders uploaded images**; local paths will not display.\n" +
	"\n" +
	"### Never use\n" +
	"\n" +
	"- `file://` paths\n" +
	"- `attachment://` paths\n" +
	"- local paths such as `/tmp/xxx.jpg`\n" +
	"- guessed URLs such as `https://static.dingtalk.com/media/xxx`\n" +
	"- any image link that was not uploaded first\n" +
	"\n" +
	"### Correct approach\n" +
	"\n" +
	"**Whenever** you need to show the user an image, you must:\n" +
	"\n" +
	"1. **Upload first**: run the curl command to upload it to DingTalk\n" +
	"2. **Confirm success**: check the returned media_id\n" +
	"3. **Then reply**: reference the media_id in markdown\n" +
	"\n" +
	"### Upload command\n" +
	"\n" +
	"```bash\n" +
	"curl -s -X POST \"%s\" -F \"media=@/actual/image/path.jpg\"\n" +
	"```\n" +
	"\n" +
	"### Response format\n" +
	"\n" +
	"```json\n" +
	"{\"errcode\":0,\"errmsg\":\"ok\",\"media_id\":\"@lADPxxxxxx\"}\n" +
	"```\n" +
	"\n" +
	"### Reply format\n" +
	"\n" +
	"```markdown\n" +
	"![description](@lADPxxxxxx)\n" +
	"```\n" +
	"\n" +
	"**Note**: the media_id starts with `@`; use it as-is, never glued onto a URL prefix.\n" +
	"\n" +
	"### Example workflow\n" +
	"\n" +
	"The user says \"take a photo\":\n" +
	"1. Take the photo, producing `/tmp/camera-snap-xxx.jpg`\n" +
	"2. Run: `curl -s -X POST \"%s\" -F \"media=@/tmp/camera-snap-xxx.jpg\"`\n" +
	"3. Extract `media_id` from the response (such as `@lADPxxxxxx`)\n" +
	"4. Reply: `Here is the photo: ![photo](@lADPxxxxxx)`\n" +
	"\n" +
	"**Key**: only reply with the image after curl has succeeded and returned a media_id!\n"

// BuildSystemPrompt returns the upload guidance with a live access token
// formatted into the curl commands, or "" when no token could be obtained.
// Callers treat "" as "skip the guidance"; the failure is not propagated.
func (m *MediaHelper) BuildSystemPrompt(ctx context.Context) string {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		m.logger.Warn("skipping media upload guidance", "error", err)
		return ""
	}

	uploadURL := m.uploadURL(token, "image")
	return fmt.Sprintf(mediaPromptFormat, uploadURL, uploadURL)
}

type uploadResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	MediaID string `json:"media_id"`
}

// Upload sends a media file to DingTalk and returns its media id.
// mediaType is one of image, voice, video, or file.
func (m *MediaHelper) Upload(ctx context.Context, mediaType, filename string, content io.Reader) (string, error) {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("obtaining access token: %w", err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("media", filename)
	if err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("reading media content: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.uploadURL(token, mediaType), &buf)
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("media upload returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var up uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if up.ErrCode != 0 {
		return "", fmt.Errorf("media upload returned errcode %d: %s", up.ErrCode, up.ErrMsg)
	}

	m.logger.Debug("uploaded media", "type", mediaType, "media_id", up.MediaID)
	return up.MediaID, nil
}

func (m *MediaHelper) uploadURL(token, mediaType string) string {
	query := url.Values{}
	query.Set("access_token", token)
	query.Set("type", mediaType)
	return m.oapiBase + "/media/upload?" + query.Encode()
}
