package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WatermarkRemover handles watermark removal from videos
type WatermarkRemover struct {
	parseMethod      string
	customParseURL   string
	customParseToken string
	fallbackEnabled  bool
	httpClient       *http.Client
}

// NewWatermarkRemover creates a new watermark remover
func NewWatermarkRemover(parseMethod, customParseURL, customParseToken string, fallbackEnabled bool) *WatermarkRemover {
	return &WatermarkRemover{
		parseMethod:      parseMethod,
		customParseURL:   customParseURL,
		customParseToken: customParseToken,
		fallbackEnabled:  fallbackEnabled,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// defaultWatermarkFreeHost is the third-party host whose /MP4/<post_id>.mp4
// URL pattern serves a watermark-free copy of a published generation
// without any parser round trip.
const defaultWatermarkFreeHost = "sora.chatgpt.com"

// IsEnabled returns whether watermark removal is enabled
func (w *WatermarkRemover) IsEnabled() bool {
	if w.parseMethod == "synthesize" {
		return true
	}
	return w.parseMethod != "" && w.customParseURL != ""
}

// shareHost is the public host a published generation is shared under;
// a custom parser resolves a watermark-free download link from this URL.
const shareHost = "sora.chatgpt.com"

// RemoveWatermarkForPost resolves the watermark-free URL for a published
// post, choosing between synthesizing the known host-pattern URL and
// asking an operator-configured parser to resolve the post's share link,
// per the configured method. fallbackURL is returned (with a nil error)
// when the chosen method fails and fallback is enabled.
func (w *WatermarkRemover) RemoveWatermarkForPost(postID, fallbackURL string) (string, error) {
	switch w.parseMethod {
	case "synthesize":
		if postID == "" {
			return w.handleFallback(fallbackURL, fmt.Errorf("missing post id for synthesize method"))
		}
		return fmt.Sprintf("https://%s/MP4/%s.mp4", defaultWatermarkFreeHost, postID), nil
	case "third_party":
		if postID == "" {
			return w.handleFallback(fallbackURL, fmt.Errorf("missing post id for third_party method"))
		}
		return w.removeWatermarkThirdParty(postID, fallbackURL)
	default:
		return fallbackURL, nil
	}
}

// removeWatermarkThirdParty asks the configured parser server to resolve a
// watermark-free download link for a published post's share page
// (https://sora.chatgpt.com/p/<post_id>), the same request shape the
// desktop client makes against a custom parse server.
func (w *WatermarkRemover) removeWatermarkThirdParty(postID, fallbackURL string) (string, error) {
	shareURL := fmt.Sprintf("https://%s/p/%s", shareHost, postID)

	reqBody := map[string]string{
		"url":   shareURL,
		"token": w.customParseToken,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return w.handleFallback(fallbackURL, err)
	}

	req, err := http.NewRequest("POST", w.customParseURL+"/get-sora-link", bytes.NewReader(jsonBody))
	if err != nil {
		return w.handleFallback(fallbackURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return w.handleFallback(fallbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return w.handleFallback(fallbackURL, fmt.Errorf("third party returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return w.handleFallback(fallbackURL, err)
	}

	var result struct {
		Error        string `json:"error"`
		DownloadLink string `json:"download_link"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return w.handleFallback(fallbackURL, err)
	}
	if result.Error != "" {
		return w.handleFallback(fallbackURL, fmt.Errorf("third party parse error: %s", result.Error))
	}
	if result.DownloadLink == "" {
		return w.handleFallback(fallbackURL, fmt.Errorf("no download_link in response"))
	}

	return result.DownloadLink, nil
}

// handleFallback handles errors with optional fallback to original URL
func (w *WatermarkRemover) handleFallback(originalURL string, err error) (string, error) {
	if w.fallbackEnabled {
		return originalURL, nil
	}
	return "", fmt.Errorf("watermark removal failed: %w", err)
}

// ParseVideoURL parses and normalizes a video URL
func (w *WatermarkRemover) ParseVideoURL(url string) string {
	// For now, just return the URL as-is
	// Can be extended to handle special cases
	return url
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (w *WatermarkRemover) SetHTTPClient(client *http.Client) {
	w.httpClient = client
}
