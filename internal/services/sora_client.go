package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"time"

	http2 "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/google/uuid"

	"sorabroker/internal/apperr"
)

const (
	SoraBaseURL    = "https://sora.chatgpt.com/backend"
	SentinelReqURL = "https://chatgpt.com/backend-api/sentinel/req"
)

// Mobile user agents for API requests
var MobileUserAgents = []string{
	"Sora/1.2026.007 (Android 15; 24122RKC7C; build 2600700)",
	"Sora/1.2026.007 (Android 14; SM-G998B; build 2600700)",
	"Sora/1.2026.007 (Android 15; Pixel 8 Pro; build 2600700)",
	"Sora/1.2026.007 (Android 14; Pixel 7; build 2600700)",
	"Sora/1.2026.007 (Android 15; 2211133C; build 2600700)",
}

// Storyboard pattern for detecting storyboard prompts
var storyboardPattern = regexp.MustCompile(`\[\d+(?:\.\d+)?s\]`)

// IsStoryboardPrompt checks if the prompt is in storyboard format
// Format: [time]prompt or [time]prompt\n[time]prompt
// Example: [5.0s]猫猫从飞机上跳伞 [5.0s]猫猫降落
func IsStoryboardPrompt(prompt string) bool {
	if prompt == "" {
		return false
	}
	matches := storyboardPattern.FindAllString(prompt, -1)
	return len(matches) >= 1
}

// FormatStoryboardPrompt converts storyboard format prompt to API format
// Input: 猫猫的奇妙冒险\n[5.0s]猫猫从飞机上跳伞 [5.0s]猫猫降落
// Output: current timeline:\nShot 1:...\n\ninstructions:\n猫猫的奇妙冒险
func FormatStoryboardPrompt(prompt string) string {
	// Match [time]content pattern
	pattern := regexp.MustCompile(`\[(\d+(?:\.\d+)?)s\]\s*([^\[]+)`)
	matches := pattern.FindAllStringSubmatch(prompt, -1)

	if len(matches) == 0 {
		return prompt
	}

	// Extract instructions (content before first [time])
	firstBracketPos := strings.Index(prompt, "[")
	instructions := ""
	if firstBracketPos > 0 {
		instructions = strings.TrimSpace(prompt[:firstBracketPos])
	}

	// Format shots
	var formattedShots []string
	for idx, match := range matches {
		duration := match[1]
		scene := strings.TrimSpace(match[2])
		shot := fmt.Sprintf("Shot %d:\nduration: %ssec\nScene: %s", idx+1, duration, scene)
		formattedShots = append(formattedShots, shot)
	}

	timeline := strings.Join(formattedShots, "\n\n")

	// If there are instructions, add them
	if instructions != "" {
		return fmt.Sprintf("current timeline:\n%s\n\ninstructions:\n%s", timeline, instructions)
	}
	return timeline
}

// TaskStatus represents the status of a generation task
type TaskStatus struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	ProgressPct float64  `json:"progress_pct"`
	URLs        []string `json:"urls,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// PendingTask represents a task in the pending list
type PendingTask struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	ProgressPct float64 `json:"progress_pct"`
}

// VideoDraft represents a video draft
type VideoDraft struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	VideoURL  string `json:"video_url"`
	Thumbnail string `json:"thumbnail_url"`
}

// SoraClient handles communication with the Sora API
type SoraClient struct {
	baseURL        string
	timeout        int
	httpClient     *http.Client
	tlsClient      tls_client.HttpClient
	proxyURL       string
	sessionManager *SessionManager
	proxyManager   *ProxyManager

	// powProxyURL, when set, routes PoW/sentinel-token traffic through this
	// proxy instead of whatever proxy the caller resolved for generation
	// traffic. Empty means sentinel requests follow the generation proxy.
	powProxyURL string
}

// NewSoraClient creates a new Sora API client
func NewSoraClient(baseURL string, timeout int, httpClient *http.Client) *SoraClient {
	if baseURL == "" {
		baseURL = SoraBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	// Create TLS client with Firefox profile to bypass Cloudflare
	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeout),
		tls_client.WithClientProfile(profiles.Firefox_132),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}
	tlsClient, _ := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)

	return &SoraClient{
		baseURL:        baseURL,
		timeout:        timeout,
		httpClient:     httpClient,
		tlsClient:      tlsClient,
		sessionManager: NewSessionManager(timeout),
	}
}

// SetProxyManager sets the proxy manager for the client
func (c *SoraClient) SetProxyManager(pm *ProxyManager) {
	c.proxyManager = pm
}

// SetSessionManager sets the session manager for the client
func (c *SoraClient) SetSessionManager(sm *SessionManager) {
	c.sessionManager = sm
}

// SetPowProxy sets (or, passed empty, clears) the dedicated proxy used for
// PoW/sentinel-token traffic, independent of the per-token generation proxy.
func (c *SoraClient) SetPowProxy(proxyURL string) {
	c.powProxyURL = proxyURL
}

// SetProxy sets the proxy URL for the client
func (c *SoraClient) SetProxy(proxyURL string) {
	c.proxyURL = proxyURL
	if proxyURL != "" {
		proxyURLParsed, err := url.Parse(proxyURL)
		if err == nil {
			c.httpClient = &http.Client{
				Timeout: time.Duration(c.timeout) * time.Second,
				Transport: &http.Transport{
					Proxy:               http.ProxyURL(proxyURLParsed),
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 20,
					IdleConnTimeout:     90 * time.Second,
				},
			}
		}
		// Update TLS client with proxy
		if c.tlsClient != nil {
			c.tlsClient.SetProxy(proxyURL)
		}
	}
}

// getClientWithProxy returns an HTTP client with optional proxy
func (c *SoraClient) getClientWithProxy(proxyURL string) *http.Client {
	if proxyURL == "" {
		proxyURL = c.proxyURL
	}
	if proxyURL == "" {
		return c.httpClient
	}

	proxyURLParsed, err := url.Parse(proxyURL)
	if err != nil {
		return c.httpClient
	}

	return &http.Client{
		Timeout: time.Duration(c.timeout) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyURL(proxyURLParsed),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// getTLSClientWithProxy returns a TLS client with optional proxy
// If token is provided, uses session manager for cookie persistence
func (c *SoraClient) getTLSClientWithProxy(proxyURL string) tls_client.HttpClient {
	if proxyURL == "" {
		proxyURL = c.proxyURL
	}
	// If proxy manager is set, get proxy from pool
	if proxyURL == "" && c.proxyManager != nil {
		proxyURL = c.proxyManager.GetProxyURL()
	}
	if proxyURL != "" && c.tlsClient != nil {
		c.tlsClient.SetProxy(proxyURL)
	}
	return c.tlsClient
}

// getTLSClientForToken returns a TLS client with session persistence for the given token
func (c *SoraClient) getTLSClientForToken(token string, proxyURL string) (tls_client.HttpClient, error) {
	if proxyURL == "" {
		proxyURL = c.proxyURL
	}
	// If proxy manager is set, get proxy from pool
	if proxyURL == "" && c.proxyManager != nil {
		proxyURL = c.proxyManager.GetProxyURL()
	}

	// Use session manager for cookie persistence
	if c.sessionManager != nil {
		return c.sessionManager.GetSession(token, proxyURL)
	}

	// Fallback to default TLS client
	if proxyURL != "" && c.tlsClient != nil {
		c.tlsClient.SetProxy(proxyURL)
	}
	return c.tlsClient, nil
}

// doTLSRequest performs an HTTP request using the TLS client (bypasses Cloudflare)
func (c *SoraClient) doTLSRequest(method, urlStr string, body []byte, headers map[string]string, proxyURL string) ([]byte, int, error) {
	return c.doTLSRequestWithToken(method, urlStr, body, headers, proxyURL, "")
}

// doTLSRequestWithToken performs an HTTP request with session persistence for the given token
func (c *SoraClient) doTLSRequestWithToken(method, urlStr string, body []byte, headers map[string]string, proxyURL string, token string) ([]byte, int, error) {
	var tlsClient tls_client.HttpClient
	var err error

	if token != "" && c.sessionManager != nil {
		tlsClient, err = c.getTLSClientForToken(token, proxyURL)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get session: %w", err)
		}
	} else {
		tlsClient = c.getTLSClientWithProxy(proxyURL)
	}

	if tlsClient == nil {
		return nil, 0, errors.New("TLS client not initialized")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http2.NewRequest(method, urlStr, bodyReader)
	if err != nil {
		return nil, 0, err
	}

	// Set default headers for Cloudflare bypass
	req.Header = http2.Header{
		"accept":          {"application/json, text/plain, */*"},
		"accept-language": {"en-US,en;q=0.9"},
		"origin":          {"https://sora.chatgpt.com"},
		"referer":         {"https://sora.chatgpt.com/"},
		"sec-fetch-dest":  {"empty"},
		"sec-fetch-mode":  {"cors"},
		"sec-fetch-site":  {"same-origin"},
		http2.HeaderOrderKey: {
			"accept",
			"accept-language",
			"authorization",
			"content-type",
			"origin",
			"referer",
			"sec-fetch-dest",
			"sec-fetch-mode",
			"sec-fetch-site",
			"user-agent",
			"openai-sentinel-token",
		},
	}

	// Override with provided headers
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tlsClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return respBody, resp.StatusCode, nil
}

// GenerateSentinelToken generates openai-sentinel-token by calling
// /backend-api/sentinel/req. flow should be sentinelFlowCreate for
// generation-submission endpoints and sentinelFlowInit for everything else
// (uploads, cameo/character calls).
func (c *SoraClient) GenerateSentinelToken(accessToken string, proxyURL string, flow string) (string, error) {
	if c.powProxyURL != "" {
		proxyURL = c.powProxyURL
	}
	reqID := uuid.New().String()
	userAgent := randomUserAgent()
	powToken := GetPowToken(userAgent)

	// Build request payload
	payload := map[string]interface{}{
		"p":    powToken,
		"flow": flow,
		"id":   reqID,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headers := map[string]string{
		"Accept":       "application/json, text/plain, */*",
		"Content-Type": "application/json",
		"Origin":       "https://sora.chatgpt.com",
		"Referer":      "https://sora.chatgpt.com/",
		"User-Agent":   userAgent,
	}
	if accessToken != "" {
		headers["Authorization"] = "Bearer " + accessToken
	}

	// Use token for session persistence
	body, statusCode, err := c.doTLSRequestWithToken("POST", SentinelReqURL, jsonBody, headers, proxyURL, accessToken)
	if err != nil {
		return "", fmt.Errorf("sentinel request failed: %v", err)
	}

	if statusCode != 200 {
		return "", fmt.Errorf("sentinel request failed with status %d: %s", statusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse sentinel response: %v", err)
	}

	// Build final sentinel token
	sentinelToken := BuildSentinelToken(flow, reqID, powToken, result, userAgent)
	return sentinelToken, nil
}

// BuildImagePayload builds the payload for image generation
func (c *SoraClient) BuildImagePayload(prompt string, width, height int, mediaID string) map[string]interface{} {
	operation := "simple_compose"
	inpaintItems := []map[string]interface{}{}

	if mediaID != "" {
		operation = "remix"
		inpaintItems = []map[string]interface{}{
			{
				"type":            "image",
				"frame_index":     0,
				"upload_media_id": mediaID,
			},
		}
	}

	return map[string]interface{}{
		"type":          "image_gen",
		"operation":     operation,
		"prompt":        prompt,
		"width":         width,
		"height":        height,
		"n_variants":    1,
		"n_frames":      1,
		"inpaint_items": inpaintItems,
	}
}

// BuildVideoPayload builds the payload for video generation
func (c *SoraClient) BuildVideoPayload(prompt, orientation, mediaID string, nFrames int, styleID, model, size string) map[string]interface{} {
	inpaintItems := []map[string]interface{}{}

	if mediaID != "" {
		inpaintItems = []map[string]interface{}{
			{
				"kind":      "upload",
				"upload_id": mediaID,
			},
		}
	}

	payload := map[string]interface{}{
		"kind":          "video",
		"prompt":        prompt,
		"orientation":   orientation,
		"size":          size,
		"n_frames":      nFrames,
		"model":         model,
		"inpaint_items": inpaintItems,
	}

	if styleID != "" {
		payload["style_id"] = strings.ToLower(styleID)
	}

	return payload
}

// BuildRemixPayload builds the payload for remix video generation
func (c *SoraClient) BuildRemixPayload(prompt, orientation, remixTargetID string, nFrames int, model string) map[string]interface{} {
	return map[string]interface{}{
		"kind":             "video",
		"prompt":           prompt,
		"inpaint_items":    []map[string]interface{}{},
		"remix_target_id":  remixTargetID,
		"cameo_ids":        []string{},
		"cameo_replacements": map[string]interface{}{},
		"model":            model,
		"orientation":      orientation,
		"n_frames":         nFrames,
	}
}

// BuildStoryboardPayload builds the payload for storyboard video generation
func (c *SoraClient) BuildStoryboardPayload(prompt, orientation, mediaID string, nFrames int) map[string]interface{} {
	inpaintItems := []map[string]interface{}{}

	if mediaID != "" {
		inpaintItems = []map[string]interface{}{
			{
				"kind":      "upload",
				"upload_id": mediaID,
			},
		}
	}

	return map[string]interface{}{
		"kind":               "video",
		"prompt":             prompt,
		"title":              "Draft your video",
		"orientation":        orientation,
		"size":               "small",
		"n_frames":           nFrames,
		"storyboard_id":      nil,
		"inpaint_items":      inpaintItems,
		"remix_target_id":    nil,
		"model":              "sy_8",
		"metadata":           nil,
		"style_id":           nil,
		"cameo_ids":          nil,
		"cameo_replacements": nil,
		"audio_caption":      nil,
		"audio_transcript":   nil,
		"video_caption":      nil,
	}
}

// makeRequest makes an HTTP request to the Sora API using TLS client with session persistence
func (c *SoraClient) makeRequest(method, endpoint, token string, body interface{}, sentinelToken string, proxyURL string) ([]byte, int, error) {
	var jsonBody []byte
	var err error
	if body != nil {
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
	}

	reqURL := c.baseURL + endpoint
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
		"User-Agent":    MobileUserAgents[rand.Intn(len(MobileUserAgents))],
		"Origin":        "https://sora.chatgpt.com",
		"Referer":       "https://sora.chatgpt.com/",
	}

	if sentinelToken != "" {
		headers["openai-sentinel-token"] = sentinelToken
	}

	// Use token for session persistence
	return c.doTLSRequestWithToken(method, reqURL, jsonBody, headers, proxyURL, token)
}

// classifyHTTPStatus turns a non-2xx upstream response into a typed apperr
// error so callers in the generation pipeline can dispatch on kind instead
// of matching error strings. 401 is auth_error, 403/429 is
// upstream_unavailable (no retry, no token penalty), a response body
// carrying error.code == "unsupported_country_code" is country_unsupported
// regardless of status, and everything else non-2xx falls to the generic
// upstream_error.
func classifyHTTPStatus(statusCode int, respBody []byte, action string) error {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(respBody, &parsed) == nil && parsed.Error.Code == "unsupported_country_code" {
		return apperr.WithStatus(apperr.KindCountryUnsupported, fmt.Sprintf("%s: unsupported country", action), statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return apperr.WithStatus(apperr.KindAuth, fmt.Sprintf("%s: unauthorized", action), statusCode)
	case http.StatusForbidden, http.StatusTooManyRequests:
		return apperr.WithStatus(apperr.KindUpstreamUnavailable, fmt.Sprintf("%s: upstream unavailable", action), statusCode)
	default:
		return apperr.WithStatus(apperr.KindUpstreamError, fmt.Sprintf("%s failed: %s", action, string(respBody)), statusCode)
	}
}

// mimeTypeForFilename returns the content type for an uploaded image based on
// its extension, defaulting to image/png for anything unrecognized.
func mimeTypeForFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}

// UploadImage uploads image bytes to /uploads and returns the resulting
// media_id, for use as the input to an image-to-image generation or a
// character avatar.
func (c *SoraClient) UploadImage(imageData []byte, filename, token, proxyURL string) (string, error) {
	if filename == "" {
		filename = "image.png"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	partHeader.Set("Content-Type", mimeTypeForFilename(filename))
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return "", fmt.Errorf("failed to write image bytes: %w", err)
	}
	if err := writer.WriteField("file_name", filename); err != nil {
		return "", fmt.Errorf("failed to write file_name field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	reqURL := c.baseURL + "/uploads"
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  writer.FormDataContentType(),
		"User-Agent":    MobileUserAgents[rand.Intn(len(MobileUserAgents))],
		"Origin":        "https://sora.chatgpt.com",
		"Referer":       "https://sora.chatgpt.com/",
	}

	respBody, statusCode, err := c.doTLSRequestWithToken("POST", reqURL, buf.Bytes(), headers, proxyURL, token)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "image upload")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	id, _ := result["id"].(string)
	if id == "" {
		return "", errors.New("no id in upload response")
	}
	return id, nil
}

// GenerateImage starts an image generation task
func (c *SoraClient) GenerateImage(prompt, token string, width, height int, mediaID string, proxyURL string) (string, error) {
	// Generate sentinel token
	sentinelToken, err := c.GenerateSentinelToken(token, proxyURL, sentinelFlowCreate)
	if err != nil {
		return "", fmt.Errorf("failed to generate sentinel token: %v", err)
	}

	payload := c.BuildImagePayload(prompt, width, height, mediaID)

	respBody, statusCode, err := c.makeRequest("POST", "/video_gen", token, payload, sentinelToken, proxyURL)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "generate image")
	}

	return ParseTaskResponse(respBody)
}

// GenerateVideo starts a video generation task
func (c *SoraClient) GenerateVideo(prompt, token, orientation, mediaID string, nFrames int, styleID, model, size string, proxyURL string) (string, error) {
	// Generate sentinel token
	sentinelToken, err := c.GenerateSentinelToken(token, proxyURL, sentinelFlowCreate)
	if err != nil {
		return "", fmt.Errorf("failed to generate sentinel token: %v", err)
	}

	payload := c.BuildVideoPayload(prompt, orientation, mediaID, nFrames, styleID, model, size)

	respBody, statusCode, err := c.makeRequest("POST", "/nf/create", token, payload, sentinelToken, proxyURL)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "generate video")
	}

	return ParseTaskResponse(respBody)
}

// RemixVideo starts a remix video generation task based on existing video
func (c *SoraClient) RemixVideo(prompt, token, orientation, remixTargetID string, nFrames int, model string, proxyURL string) (string, error) {
	// Generate sentinel token
	sentinelToken, err := c.GenerateSentinelToken(token, proxyURL, sentinelFlowCreate)
	if err != nil {
		return "", fmt.Errorf("failed to generate sentinel token: %v", err)
	}

	if model == "" {
		model = "sy_8"
	}

	payload := c.BuildRemixPayload(prompt, orientation, remixTargetID, nFrames, model)

	respBody, statusCode, err := c.makeRequest("POST", "/nf/create", token, payload, sentinelToken, proxyURL)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "remix video")
	}

	return ParseTaskResponse(respBody)
}

// GenerateStoryboard starts a storyboard video generation task
func (c *SoraClient) GenerateStoryboard(prompt, token, orientation, mediaID string, nFrames int, proxyURL string) (string, error) {
	// Generate sentinel token
	sentinelToken, err := c.GenerateSentinelToken(token, proxyURL, sentinelFlowCreate)
	if err != nil {
		return "", fmt.Errorf("failed to generate sentinel token: %v", err)
	}

	payload := c.BuildStoryboardPayload(prompt, orientation, mediaID, nFrames)

	respBody, statusCode, err := c.makeRequest("POST", "/nf/create/storyboard", token, payload, sentinelToken, proxyURL)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "generate storyboard")
	}

	return ParseTaskResponse(respBody)
}

// ParseTaskResponse parses the task creation response
func ParseTaskResponse(body []byte) (string, error) {
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	id, ok := result["id"].(string)
	if !ok || id == "" {
		if errMsg, ok := result["error"].(string); ok {
			return "", errors.New(errMsg)
		}
		if detail, ok := result["detail"].(string); ok {
			return "", errors.New(detail)
		}
		return "", errors.New("no task ID in response")
	}

	return id, nil
}

// GetPendingTasks gets the list of pending tasks
func (c *SoraClient) GetPendingTasks(token string, proxyURL string) ([]PendingTask, error) {
	respBody, statusCode, err := c.makeRequest("GET", "/nf/pending/v2", token, nil, "", proxyURL)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, classifyHTTPStatus(statusCode, respBody, "list pending tasks")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	tasksRaw, ok := result["tasks"].([]interface{})
	if !ok {
		return []PendingTask{}, nil
	}

	var tasks []PendingTask
	for _, t := range tasksRaw {
		if task, ok := t.(map[string]interface{}); ok {
			pt := PendingTask{
				ID:     task["id"].(string),
				Status: "processing",
			}
			if pct, ok := task["progress_pct"].(float64); ok {
				pt.ProgressPct = pct
			}
			tasks = append(tasks, pt)
		}
	}

	return tasks, nil
}

// GetImageTasks gets recent image generation tasks
func (c *SoraClient) GetImageTasks(token string, limit int, proxyURL string) ([]map[string]interface{}, error) {
	endpoint := fmt.Sprintf("/v2/recent_tasks?limit=%d", limit)

	respBody, statusCode, err := c.makeRequest("GET", endpoint, token, nil, "", proxyURL)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, classifyHTTPStatus(statusCode, respBody, "list image tasks")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	// Try "task_responses" first (new API format), then "tasks" (old format)
	tasks, ok := result["task_responses"].([]interface{})
	if !ok {
		tasks, ok = result["tasks"].([]interface{})
		if !ok {
			return []map[string]interface{}{}, nil
		}
	}

	var taskList []map[string]interface{}
	for _, t := range tasks {
		if task, ok := t.(map[string]interface{}); ok {
			taskList = append(taskList, task)
		}
	}

	return taskList, nil
}

// GetVideoDrafts gets recent video drafts
func (c *SoraClient) GetVideoDrafts(token string, limit int, proxyURL string) ([]VideoDraft, error) {
	endpoint := fmt.Sprintf("/project_y/profile/drafts?limit=%d", limit)

	respBody, statusCode, err := c.makeRequest("GET", endpoint, token, nil, "", proxyURL)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, classifyHTTPStatus(statusCode, respBody, "list video drafts")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	draftsRaw, ok := result["drafts"].([]interface{})
	if !ok {
		return []VideoDraft{}, nil
	}

	var drafts []VideoDraft
	for _, d := range draftsRaw {
		if draft, ok := d.(map[string]interface{}); ok {
			vd := VideoDraft{
				ID: draft["id"].(string),
			}
			if status, ok := draft["status"].(string); ok {
				vd.Status = status
			}
			// Extract video URL from media
			if media, ok := draft["media"].(map[string]interface{}); ok {
				if videoURL, ok := media["url"].(string); ok {
					vd.VideoURL = videoURL
				}
				if thumb, ok := media["thumbnail_url"].(string); ok {
					vd.Thumbnail = thumb
				}
			}
			drafts = append(drafts, vd)
		}
	}

	return drafts, nil
}

// FindTaskInPending finds a task by ID in the pending list
func (c *SoraClient) FindTaskInPending(taskID, token string, proxyURL string) (*PendingTask, error) {
	tasks, err := c.GetPendingTasks(token, proxyURL)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if task.ID == taskID {
			return &task, nil
		}
	}

	return nil, nil // Not found in pending
}

// FindTaskInImageTasks finds a completed image task
func (c *SoraClient) FindTaskInImageTasks(taskID, token string, proxyURL string) (map[string]interface{}, error) {
	tasks, err := c.GetImageTasks(token, 20, proxyURL)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if id, ok := task["id"].(string); ok && id == taskID {
			return task, nil
		}
	}

	return nil, nil
}

// FindTaskInVideoDrafts finds a completed video task
func (c *SoraClient) FindTaskInVideoDrafts(taskID, token string, proxyURL string) (*VideoDraft, error) {
	drafts, err := c.GetVideoDrafts(token, 20, proxyURL)
	if err != nil {
		return nil, err
	}

	for _, draft := range drafts {
		if draft.ID == taskID {
			return &draft, nil
		}
	}

	return nil, nil
}

// ExtractImageURLs extracts image URLs from a completed image task
func ExtractImageURLs(task map[string]interface{}) []string {
	var urls []string

	// Try to get URLs from generations
	if generations, ok := task["generations"].([]interface{}); ok {
		for _, gen := range generations {
			if g, ok := gen.(map[string]interface{}); ok {
				// Try direct url field first (new API format)
				if imgURL, ok := g["url"].(string); ok && imgURL != "" {
					urls = append(urls, imgURL)
					continue
				}
				// Try media.url (old API format)
				if media, ok := g["media"].(map[string]interface{}); ok {
					if imgURL, ok := media["url"].(string); ok {
						urls = append(urls, imgURL)
					}
				}
			}
		}
	}

	return urls
}

// PublishVideo publishes a video to get watermark-free URL
func (c *SoraClient) PublishVideo(draftID, token string, proxyURL string) (string, string, error) {
	payload := map[string]interface{}{
		"draft_id":    draftID,
		"title":       "",
		"description": "",
		"visibility":  "private",
	}

	respBody, statusCode, err := c.makeRequest("POST", "/project_y/post", token, payload, "", proxyURL)
	if err != nil {
		return "", "", err
	}

	if statusCode >= 400 {
		return "", "", classifyHTTPStatus(statusCode, respBody, "publish video")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", "", err
	}

	postID, _ := result["id"].(string)
	videoURL := ""
	if media, ok := result["media"].(map[string]interface{}); ok {
		videoURL, _ = media["url"].(string)
	}

	return postID, videoURL, nil
}

// DeletePost deletes a published post
func (c *SoraClient) DeletePost(postID, token string, proxyURL string) error {
	endpoint := fmt.Sprintf("/project_y/post/%s", postID)
	respBody, statusCode, err := c.makeRequest("DELETE", endpoint, token, nil, "", proxyURL)
	if err != nil {
		return err
	}

	if statusCode >= 400 {
		return classifyHTTPStatus(statusCode, respBody, "delete post")
	}

	return nil
}

// ========== Character (Cameo) API Methods ==========
//
// This suite mirrors the upstream mobile client's character-creation flow:
// upload a short video to mint a cameo, poll its processing status for
// hint fields and a profile asset to mirror, download and re-upload that
// asset as the character's own avatar, then finalize and (optionally)
// publish the character. Every endpoint below is one of the handful the
// mobile app is permitted to call; there is no broader character-browsing
// API to ground a username-availability check or a cross-account search
// against, so this client exposes exactly what the finalize flow needs.

// UploadCharacterVideo uploads a short clip for character creation in a
// single multipart POST and returns the resulting cameo_id.
func (c *SoraClient) UploadCharacterVideo(videoData []byte, token string, timestamps string, proxyURL string) (string, error) {
	if timestamps == "" {
		timestamps = "0,3"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="video.mp4"`)
	partHeader.Set("Content-Type", "video/mp4")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(videoData); err != nil {
		return "", fmt.Errorf("failed to write video bytes: %w", err)
	}
	if err := writer.WriteField("timestamps", timestamps); err != nil {
		return "", fmt.Errorf("failed to write timestamps field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	reqURL := c.baseURL + "/characters/upload"
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  writer.FormDataContentType(),
		"User-Agent":    MobileUserAgents[rand.Intn(len(MobileUserAgents))],
		"Origin":        "https://sora.chatgpt.com",
		"Referer":       "https://sora.chatgpt.com/",
	}

	respBody, statusCode, err := c.doTLSRequestWithToken("POST", reqURL, buf.Bytes(), headers, proxyURL, token)
	if err != nil {
		return "", fmt.Errorf("character video upload failed: %w", err)
	}
	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "upload character video")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse character upload response: %w", err)
	}
	cameoID, _ := result["id"].(string)
	if cameoID == "" {
		return "", errors.New("no id in character upload response")
	}
	return cameoID, nil
}

// GetCameoStatus polls the processing status of a cameo, returning the
// status, the username/display-name hints the upstream derives from the
// uploaded clip, and the profile_asset_url to mirror as the character's
// avatar once ready.
func (c *SoraClient) GetCameoStatus(cameoID, token string, proxyURL string) (status, usernameHint, displayNameHint, profileAssetURL string, err error) {
	endpoint := fmt.Sprintf("/project_y/cameos/in_progress/%s", cameoID)

	respBody, statusCode, reqErr := c.makeRequest("GET", endpoint, token, nil, "", proxyURL)
	if reqErr != nil {
		return "", "", "", "", reqErr
	}
	if statusCode >= 400 {
		return "", "", "", "", classifyHTTPStatus(statusCode, respBody, "get cameo status")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", "", "", "", err
	}

	status, _ = result["status"].(string)
	usernameHint, _ = result["username_hint"].(string)
	displayNameHint, _ = result["display_name_hint"].(string)
	profileAssetURL, _ = result["profile_asset_url"].(string)
	return status, usernameHint, displayNameHint, profileAssetURL, nil
}

// DownloadCharacterImage fetches the profile_asset_url a cameo-status poll
// returned, as a plain unauthenticated GET against that URL.
func (c *SoraClient) DownloadCharacterImage(imageURL, proxyURL string) ([]byte, error) {
	respBody, statusCode, err := c.doTLSRequest("GET", imageURL, nil, nil, proxyURL)
	if err != nil {
		return nil, fmt.Errorf("character image download failed: %w", err)
	}
	if statusCode >= 400 {
		return nil, classifyHTTPStatus(statusCode, respBody, "download character image")
	}
	return respBody, nil
}

// UploadCharacterImage uploads the character's avatar image and returns the
// asset_pointer finalize_character expects.
func (c *SoraClient) UploadCharacterImage(imageData []byte, token string, proxyURL string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="profile.webp"`)
	partHeader.Set("Content-Type", "image/webp")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return "", fmt.Errorf("failed to write image bytes: %w", err)
	}
	if err := writer.WriteField("use_case", "profile"); err != nil {
		return "", fmt.Errorf("failed to write use_case field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	reqURL := c.baseURL + "/project_y/file/upload"
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  writer.FormDataContentType(),
		"User-Agent":    MobileUserAgents[rand.Intn(len(MobileUserAgents))],
		"Origin":        "https://sora.chatgpt.com",
		"Referer":       "https://sora.chatgpt.com/",
	}

	respBody, statusCode, err := c.doTLSRequestWithToken("POST", reqURL, buf.Bytes(), headers, proxyURL, token)
	if err != nil {
		return "", fmt.Errorf("character image upload failed: %w", err)
	}
	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "upload character image")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse character image upload response: %w", err)
	}
	assetPointer, _ := result["asset_pointer"].(string)
	if assetPointer == "" {
		return "", errors.New("no asset_pointer in upload response")
	}
	return assetPointer, nil
}

// FinalizeCharacter finalizes a cameo into a character. instruction_set and
// safety_instruction_set are always sent as null — the upstream API does
// not honor caller-supplied values for either.
func (c *SoraClient) FinalizeCharacter(cameoID, username, displayName, profileAssetPointer, token string, proxyURL string) (string, error) {
	payload := map[string]interface{}{
		"cameo_id":               cameoID,
		"username":               username,
		"display_name":           displayName,
		"profile_asset_pointer":  profileAssetPointer,
		"instruction_set":        nil,
		"safety_instruction_set": nil,
	}

	respBody, statusCode, err := c.makeRequest("POST", "/characters/finalize", token, payload, "", proxyURL)
	if err != nil {
		return "", fmt.Errorf("finalize character failed: %w", err)
	}
	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "finalize character")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	character, _ := result["character"].(map[string]interface{})
	characterID, _ := character["character_id"].(string)
	if characterID == "" {
		return "", errors.New("no character_id in finalize response")
	}
	return characterID, nil
}

// SetCharacterPublic flips a finalized cameo's visibility to public.
func (c *SoraClient) SetCharacterPublic(cameoID, token string, proxyURL string) error {
	payload := map[string]interface{}{"visibility": "public"}
	endpoint := fmt.Sprintf("/project_y/cameos/by_id/%s/update_v2", cameoID)

	respBody, statusCode, err := c.makeRequest("POST", endpoint, token, payload, "", proxyURL)
	if err != nil {
		return fmt.Errorf("set character public failed: %w", err)
	}
	if statusCode >= 400 {
		return classifyHTTPStatus(statusCode, respBody, "set character public")
	}
	return nil
}

// DeleteCharacter deletes a finalized character by its character_id.
func (c *SoraClient) DeleteCharacter(characterID, token string, proxyURL string) error {
	endpoint := fmt.Sprintf("/project_y/characters/%s", characterID)

	respBody, statusCode, err := c.makeRequest("DELETE", endpoint, token, nil, "", proxyURL)
	if err != nil {
		return err
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return classifyHTTPStatus(statusCode, respBody, "delete character")
	}
	return nil
}

// BuildVideoPayloadWithCameo builds video payload with character references
func (c *SoraClient) BuildVideoPayloadWithCameo(prompt, orientation, mediaID string, nFrames int, styleID, model, size string, cameoIDs []string) map[string]interface{} {
	payload := c.BuildVideoPayload(prompt, orientation, mediaID, nFrames, styleID, model, size)

	if len(cameoIDs) > 0 {
		payload["cameo_ids"] = cameoIDs
	}

	return payload
}

// GenerateVideoWithCameo starts a video generation task with character references
func (c *SoraClient) GenerateVideoWithCameo(prompt, token, orientation, mediaID string, nFrames int, styleID, model, size string, cameoIDs []string, proxyURL string) (string, error) {
	// Generate sentinel token
	sentinelToken, err := c.GenerateSentinelToken(token, proxyURL, sentinelFlowCreate)
	if err != nil {
		return "", fmt.Errorf("failed to generate sentinel token: %v", err)
	}

	payload := c.BuildVideoPayloadWithCameo(prompt, orientation, mediaID, nFrames, styleID, model, size, cameoIDs)

	respBody, statusCode, err := c.makeRequest("POST", "/nf/create", token, payload, sentinelToken, proxyURL)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", classifyHTTPStatus(statusCode, respBody, "generate video with cameo")
	}

	return ParseTaskResponse(respBody)
}
