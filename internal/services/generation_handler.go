package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"sorabroker/internal/apperr"
	"sorabroker/internal/database"
	"sorabroker/internal/models"
)

// ModelKind distinguishes the two media kinds the gateway can produce.
type ModelKind string

const (
	ModelKindImage ModelKind = "image"
	ModelKindVideo ModelKind = "video"
)

// ModelConfig is the resolved shape of a caller-facing model name: what kind
// of media it produces and the upstream parameters that shape.
type ModelConfig struct {
	Kind        ModelKind
	Orientation string // landscape, portrait
	Width       int
	Height      int
	NFrames     int // 300=10s, 450=15s
}

// closedModelTable is the full set of model names the gateway accepts.
// Unlike the legacy substring-based parser this replaces, a name absent from
// this table is an invalid_model error rather than a best-guess default.
var closedModelTable = map[string]*ModelConfig{
	"sora-image":           {Kind: ModelKindImage, Orientation: "landscape", Width: 1024, Height: 1024},
	"sora-image-landscape": {Kind: ModelKindImage, Orientation: "landscape", Width: 1792, Height: 1024},
	"sora-image-portrait":  {Kind: ModelKindImage, Orientation: "portrait", Width: 1024, Height: 1792},

	"sora-video-landscape-10s": {Kind: ModelKindVideo, Orientation: "landscape", NFrames: 300},
	"sora-video-landscape-15s": {Kind: ModelKindVideo, Orientation: "landscape", NFrames: 450},
	"sora-video-portrait-10s":  {Kind: ModelKindVideo, Orientation: "portrait", NFrames: 300},
	"sora-video-portrait-15s":  {Kind: ModelKindVideo, Orientation: "portrait", NFrames: 450},
}

// ParseModel resolves a caller-facing model name against the closed model
// table. Names outside the table fail with KindInvalidModel rather than
// falling back to a guessed configuration.
func ParseModel(model string) (*ModelConfig, error) {
	cfg, ok := closedModelTable[strings.ToLower(model)]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidModel, fmt.Sprintf("unsupported model %q", model))
	}
	cp := *cfg
	return &cp, nil
}

// GenerationConfig holds timing configuration for the generation pipeline.
type GenerationConfig struct {
	ImageTimeout   time.Duration
	VideoTimeout   time.Duration
	PollInterval   time.Duration
	ImageHeartbeat time.Duration // minimum spacing between image progress events
	VideoHeartbeat time.Duration // minimum spacing between video progress events
}

func defaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		ImageTimeout:   5 * time.Minute,
		VideoTimeout:   50 * time.Minute,
		PollInterval:   2500 * time.Millisecond,
		ImageHeartbeat: 10 * time.Second,
		VideoHeartbeat: 30 * time.Second,
	}
}

// GenerationHandler orchestrates the full generation pipeline: token
// selection, upstream submission, polling, watermark-free resolution,
// caching, and resource release.
type GenerationHandler struct {
	db               *database.DB
	soraClient       *SoraClient
	loadBalancer     *LoadBalancer
	tokenManager     *TokenManager
	fileCache        *FileCache
	watermarkRemover *WatermarkRemover
	config           *GenerationConfig
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(db *database.DB, lb *LoadBalancer, tm *TokenManager, fileCache *FileCache, watermarkRemover *WatermarkRemover, cfg *GenerationConfig) *GenerationHandler {
	if cfg == nil {
		cfg = defaultGenerationConfig()
	}
	return &GenerationHandler{
		db:               db,
		soraClient:       NewSoraClient("", 120, nil),
		loadBalancer:     lb,
		tokenManager:     tm,
		fileCache:        fileCache,
		watermarkRemover: watermarkRemover,
		config:           cfg,
	}
}

// SetProxyManager attaches a rotating proxy pool as the fallback the
// upstream client falls back to when neither the token nor the global
// config names an explicit proxy.
func (h *GenerationHandler) SetProxyManager(pm *ProxyManager) {
	h.soraClient.SetProxyManager(pm)
}

// GenerationResult represents the result of a generation.
type GenerationResult struct {
	TaskID   string   `json:"task_id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	URLs     []string `json:"urls,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// StreamEvent represents a streaming progress update.
type StreamEvent struct {
	Type     string  `json:"type"` // progress, error
	Progress float64 `json:"progress,omitempty"`
	Content  string  `json:"content,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func emitProgress(stream bool, eventChan chan<- StreamEvent, progress float64, content string) {
	if stream && eventChan != nil {
		eventChan <- StreamEvent{Type: "progress", Progress: progress, Content: content}
	}
}

// classifyUpstreamError wraps a plain error from the Sora client into the
// closed apperr kind set, leaving an already-classified error untouched.
func classifyUpstreamError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.KindOf(err); ok {
		return err
	}
	return apperr.Wrap(apperr.KindUpstreamError, "upstream request failed", err)
}

func (h *GenerationHandler) resolveProxyURL(token *models.Token) string {
	proxyURL := ""
	cfg, err := h.db.GetSystemConfig()
	if err == nil && cfg.ProxyEnabled {
		proxyURL = cfg.ProxyURL
	}
	if token.ProxyURL != "" {
		proxyURL = token.ProxyURL
	}

	// PoW/sentinel traffic routes separately from generation traffic when an
	// operator-configured PoW proxy is enabled; the per-token proxy above
	// never applies to it.
	if err == nil && cfg.PowProxyEnabled && cfg.PowProxyURL != "" {
		h.soraClient.SetPowProxy(cfg.PowProxyURL)
	} else {
		h.soraClient.SetPowProxy("")
	}

	return proxyURL
}

// GenerateWithMedia is the single entry point the chat-completions handler
// calls for both streaming and non-streaming requests. The caller's stream
// flag only gates whether progress events are emitted onto eventChan — the
// generation itself always runs to completion synchronously here, since the
// eligibility probe (SelectImage/SelectVideo below) is what consumes no
// resources on failure, not the request's streaming mode.
func (h *GenerationHandler) GenerateWithMedia(ctx context.Context, prompt, model, imageDataB64, videoDataB64, remixTargetID string, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	modelCfg, err := ParseModel(model)
	if err != nil {
		return nil, err
	}

	switch {
	case modelCfg.Kind == ModelKindImage:
		return h.generateImage(ctx, prompt, modelCfg, imageDataB64, stream, eventChan)
	case videoDataB64 != "":
		return h.generateVideoWithCharacter(ctx, prompt, modelCfg, videoDataB64, stream, eventChan)
	case remixTargetID != "":
		return h.generateVideoRemix(ctx, prompt, modelCfg, remixTargetID, stream, eventChan)
	default:
		return h.generateVideo(ctx, prompt, modelCfg, imageDataB64, stream, eventChan)
	}
}

func decodeMedia(dataB64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamError, "invalid base64 media data", err)
	}
	return data, nil
}

// generateImage is branch 2 of the generation pipeline: optional image
// upload for image-to-image, then a plain image_gen submission.
func (h *GenerationHandler) generateImage(ctx context.Context, prompt string, modelCfg *ModelConfig, imageDataB64 string, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	token := h.loadBalancer.SelectImage(time.Now())
	if token == nil {
		return nil, apperr.New(apperr.KindNoEligibleToken, "no eligible token for image generation")
	}
	released := false
	release := func() {
		if !released {
			h.loadBalancer.ReleaseImage(token.ID)
			released = true
		}
	}
	defer release()

	proxyURL := h.resolveProxyURL(token)

	mediaID := ""
	if imageDataB64 != "" {
		data, err := decodeMedia(imageDataB64)
		if err != nil {
			h.tokenManager.RecordGenerationError(token.ID, err)
			return nil, err
		}
		mediaID, err = h.soraClient.UploadImage(data, "input.png", token.Token, proxyURL)
		if err != nil {
			genErr := classifyUpstreamError(err)
			h.tokenManager.RecordGenerationError(token.ID, genErr)
			return nil, genErr
		}
	}

	emitProgress(stream, eventChan, 0, "任务已创建，开始生成...")

	taskID, err := h.soraClient.GenerateImage(prompt, token.Token, modelCfg.Width, modelCfg.Height, mediaID, proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	task := &models.Task{TaskID: taskID, TokenID: token.ID, Model: "sora-image", Prompt: prompt, Status: models.TaskStatusProcessing}
	h.db.CreateTask(task)

	result, err := h.poll(ctx, taskID, token.Token, proxyURL, false, stream, eventChan)
	if err != nil {
		h.tokenManager.RecordGenerationError(token.ID, err)
		h.failTask(task, err)
		return nil, err
	}

	result.URLs = h.cacheURLs(ctx, result.URLs, "image")

	h.tokenManager.RecordUsage(token.ID, false)
	h.tokenManager.RecordSuccess(token.ID, false)
	h.completeTask(task, result.URLs)

	emitProgress(stream, eventChan, 100, "")
	return result, nil
}

// generateVideo is branch 3: a vanilla video submission, with storyboard
// detection and an optional image upload for image-to-video.
func (h *GenerationHandler) generateVideo(ctx context.Context, prompt string, modelCfg *ModelConfig, imageDataB64 string, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	token := h.loadBalancer.SelectVideo(time.Now())
	if token == nil {
		return nil, apperr.New(apperr.KindNoEligibleToken, "no eligible token for video generation")
	}
	released := false
	release := func() {
		if !released {
			h.loadBalancer.ReleaseVideo(token.ID)
			released = true
		}
	}
	defer release()

	proxyURL := h.resolveProxyURL(token)

	mediaID := ""
	if imageDataB64 != "" {
		data, err := decodeMedia(imageDataB64)
		if err != nil {
			h.tokenManager.RecordGenerationError(token.ID, err)
			return nil, err
		}
		mediaID, err = h.soraClient.UploadImage(data, "input.png", token.Token, proxyURL)
		if err != nil {
			genErr := classifyUpstreamError(err)
			h.tokenManager.RecordGenerationError(token.ID, genErr)
			return nil, genErr
		}
	}

	emitProgress(stream, eventChan, 0, "任务已创建，开始生成...")

	var taskID string
	var err error
	if IsStoryboardPrompt(prompt) {
		taskID, err = h.soraClient.GenerateStoryboard(FormatStoryboardPrompt(prompt), token.Token, modelCfg.Orientation, mediaID, modelCfg.NFrames, proxyURL)
	} else {
		taskID, err = h.soraClient.GenerateVideo(prompt, token.Token, modelCfg.Orientation, mediaID, modelCfg.NFrames, "", "sy_8", "small", proxyURL)
	}
	if err != nil {
		genErr := classifyUpstreamError(err)
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	return h.finishVideo(ctx, taskID, token, proxyURL, "sora-video", prompt, stream, eventChan, release)
}

// generateVideoRemix is branch 4: a remix of an existing video, skipping
// image upload entirely and cleaning the caller's prompt of any pasted
// share link or raw remix ID before submission.
func (h *GenerationHandler) generateVideoRemix(ctx context.Context, prompt string, modelCfg *ModelConfig, remixTargetID string, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	token := h.loadBalancer.SelectVideo(time.Now())
	if token == nil {
		return nil, apperr.New(apperr.KindNoEligibleToken, "no eligible token for video generation")
	}
	released := false
	release := func() {
		if !released {
			h.loadBalancer.ReleaseVideo(token.ID)
			released = true
		}
	}
	defer release()

	proxyURL := h.resolveProxyURL(token)
	cleanPrompt := cleanRemixPrompt(prompt)

	emitProgress(stream, eventChan, 0, "任务已创建，开始生成...")

	taskID, err := h.soraClient.RemixVideo(cleanPrompt, token.Token, modelCfg.Orientation, remixTargetID, modelCfg.NFrames, "sy_8", proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	return h.finishVideo(ctx, taskID, token, proxyURL, "sora-video-remix", cleanPrompt, stream, eventChan, release)
}

// remixURLPattern strips a pasted share link (https://<host>/p/s_<32 hex>);
// remixIDPattern strips a bare remix ID left over after the link is removed
// (or pasted on its own).
var remixURLPattern = regexp.MustCompile(`https?://\S+/p/s_[0-9a-f]{32}`)
var remixIDPattern = regexp.MustCompile(`\bs_[0-9a-f]{32}\b`)

func cleanRemixPrompt(prompt string) string {
	cleaned := remixURLPattern.ReplaceAllString(prompt, "")
	cleaned = remixIDPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(strings.Join(strings.Fields(cleaned), " "))
}

// generateVideoWithCharacter is branch 5: create a throwaway character from
// the caller-supplied video, render a video that @mentions it, then always
// delete the character in the terminal cleanup step regardless of outcome.
func (h *GenerationHandler) generateVideoWithCharacter(ctx context.Context, prompt string, modelCfg *ModelConfig, videoDataB64 string, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	token := h.loadBalancer.SelectVideo(time.Now())
	if token == nil {
		return nil, apperr.New(apperr.KindNoEligibleToken, "no eligible token for video generation")
	}
	released := false
	release := func() {
		if !released {
			h.loadBalancer.ReleaseVideo(token.ID)
			released = true
		}
	}
	defer release()

	proxyURL := h.resolveProxyURL(token)

	videoData, err := decodeMedia(videoDataB64)
	if err != nil {
		h.tokenManager.RecordGenerationError(token.ID, err)
		return nil, err
	}

	emitProgress(stream, eventChan, 0, "正在创建角色...")

	cameoID, err := h.soraClient.UploadCharacterVideo(videoData, token.Token, "0,3", proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	character := &models.Character{
		CameoID: cameoID,
		Status:  models.CharacterStatusProcessing,
		TokenID: token.ID,
	}
	characterRowID, _ := h.db.CreateCharacter(character)
	character.ID = characterRowID

	// The cameo itself has no delete endpoint; only a finalized character
	// (character.CharacterID set) has an upstream resource to clean up.
	cleanup := func() {
		if character.CharacterID != "" {
			h.soraClient.DeleteCharacter(character.CharacterID, token.Token, proxyURL)
		}
		h.db.DeleteCharacter(character.ID)
	}

	_, usernameHint, displayNameHint, profileAssetURL, err := h.pollCameoStatus(ctx, cameoID, token.Token, proxyURL)
	if err != nil {
		cleanup()
		h.tokenManager.RecordGenerationError(token.ID, err)
		return nil, err
	}

	username := deriveCharacterUsername(usernameHint, cameoID)
	displayName := displayNameHint
	if displayName == "" {
		displayName = username
	}

	emitProgress(stream, eventChan, 15, "正在同步头像...")

	avatar, err := h.soraClient.DownloadCharacterImage(profileAssetURL, proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		cleanup()
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	assetPointer, err := h.soraClient.UploadCharacterImage(avatar, token.Token, proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		cleanup()
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	characterID, err := h.soraClient.FinalizeCharacter(cameoID, username, displayName, assetPointer, token.Token, proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		cleanup()
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	character.CharacterID = characterID
	character.Username = username
	character.DisplayName = displayName
	character.ProfileURL = profileAssetURL
	character.Status = models.CharacterStatusFinalized
	h.db.UpdateCharacter(character)

	emitProgress(stream, eventChan, 30, "角色创建完成，开始生成视频...")

	finalPrompt := fmt.Sprintf("@%s %s", username, prompt)
	taskID, err := h.soraClient.GenerateVideoWithCameo(finalPrompt, token.Token, modelCfg.Orientation, "", modelCfg.NFrames, "", "sy_8", "small", []string{cameoID}, proxyURL)
	if err != nil {
		genErr := classifyUpstreamError(err)
		cleanup()
		h.tokenManager.RecordGenerationError(token.ID, genErr)
		return nil, genErr
	}

	result, err := h.finishVideo(ctx, taskID, token, proxyURL, "sora-video-character", finalPrompt, stream, eventChan, release)
	cleanup()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deriveCharacterUsername extracts the final handle from the upstream's
// username_hint: the segment after the last '.' (if any), lowercased, with
// three random digits appended so repeated character creation never
// collides. Falls back to the cameo ID when the hint is unusable.
func deriveCharacterUsername(usernameHint, fallback string) string {
	base := usernameHint
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		base = fallback
	}
	return fmt.Sprintf("%s%d", base, rand.Intn(900)+100)
}

// pollCameoStatus polls cameo processing status until it reaches a terminal
// state or the image timeout elapses, returning the hints and profile asset
// URL the finalize step needs.
func (h *GenerationHandler) pollCameoStatus(ctx context.Context, cameoID, token, proxyURL string) (status, usernameHint, displayNameHint, profileAssetURL string, err error) {
	start := time.Now()
	pollInterval := h.config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2500 * time.Millisecond
	}

	for {
		if time.Since(start) > h.config.ImageTimeout {
			return "", "", "", "", apperr.New(apperr.KindUpstreamTimeout, "character creation timed out")
		}

		select {
		case <-ctx.Done():
			return "", "", "", "", apperr.Wrap(apperr.KindCancelled, "character creation cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		status, usernameHint, displayNameHint, profileAssetURL, err := h.soraClient.GetCameoStatus(cameoID, token, proxyURL)
		if err != nil {
			continue
		}
		switch status {
		case "failed", "error":
			return status, usernameHint, displayNameHint, profileAssetURL, apperr.New(apperr.KindUpstreamError, "character creation failed")
		case "completed", "ready", "finalized":
			return status, usernameHint, displayNameHint, profileAssetURL, nil
		}
		if profileAssetURL != "" {
			return status, usernameHint, displayNameHint, profileAssetURL, nil
		}
	}
}

// finishVideo creates the task record, polls to completion, resolves the
// watermark-free URL when enabled, caches the result, records token usage,
// and releases the video resource on every exit path via release.
func (h *GenerationHandler) finishVideo(ctx context.Context, taskID string, token *models.Token, proxyURL, modelLabel, prompt string, stream bool, eventChan chan<- StreamEvent, release func()) (*GenerationResult, error) {
	task := &models.Task{TaskID: taskID, TokenID: token.ID, Model: modelLabel, Prompt: prompt, Status: models.TaskStatusProcessing}
	h.db.CreateTask(task)

	result, err := h.poll(ctx, taskID, token.Token, proxyURL, true, stream, eventChan)
	if err != nil {
		h.tokenManager.RecordGenerationError(token.ID, err)
		h.failTask(task, err)
		return nil, err
	}

	if h.watermarkRemover != nil && h.watermarkRemover.IsEnabled() && len(result.URLs) > 0 {
		originalURL := result.URLs[0]
		postID, publishedURL, pubErr := h.soraClient.PublishVideo(taskID, token.Token, proxyURL)
		if pubErr != nil {
			// Publish itself failed before a post ever existed; fall into the
			// same fallback-or-surface path RemoveWatermarkForPost applies to
			// a failed parse, keyed off the empty post ID.
			postID = ""
			publishedURL = originalURL
		}
		wfURL, wfErr := h.watermarkRemover.RemoveWatermarkForPost(postID, publishedURL)
		if postID != "" {
			h.soraClient.DeletePost(postID, token.Token, proxyURL)
		}
		if wfErr != nil {
			genErr := classifyUpstreamError(wfErr)
			h.tokenManager.RecordGenerationError(token.ID, genErr)
			h.failTask(task, genErr)
			return nil, genErr
		}
		if wfURL != "" {
			result.URLs = []string{wfURL}
		}
	}

	result.URLs = h.cacheURLs(ctx, result.URLs, "video")

	h.tokenManager.RecordUsage(token.ID, true)
	h.tokenManager.RecordSuccess(token.ID, true)
	h.completeTask(task, result.URLs)

	emitProgress(stream, eventChan, 100, "")
	return result, nil
}

func (h *GenerationHandler) failTask(task *models.Task, err error) {
	task.Status = models.TaskStatusFailed
	task.ErrorMessage = err.Error()
	h.db.UpdateTask(task)
}

func (h *GenerationHandler) completeTask(task *models.Task, urls []string) {
	task.Status = models.TaskStatusCompleted
	urlsJSON, _ := json.Marshal(urls)
	task.ResultURLs = string(urlsJSON)
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	h.db.UpdateTask(task)
}

// cacheURLs downloads each upstream URL into the content-addressed file
// cache and rewrites it to the cache's own public URL. A URL that fails to
// cache is passed through unchanged rather than dropped.
func (h *GenerationHandler) cacheURLs(ctx context.Context, urls []string, kind string) []string {
	if h.fileCache == nil {
		return urls
	}
	cached := make([]string, 0, len(urls))
	for _, u := range urls {
		filename, err := h.fileCache.DownloadAndCache(ctx, u, kind)
		if err != nil {
			cached = append(cached, u)
			continue
		}
		cached = append(cached, h.fileCache.GetURL(filename))
	}
	return cached
}

// poll watches a submitted task until it leaves the pending list and lands
// in the appropriate terminal store, rate-limiting progress events to the
// configured heartbeat so a fast-polling loop doesn't flood the stream.
func (h *GenerationHandler) poll(ctx context.Context, taskID, token, proxyURL string, isVideo bool, stream bool, eventChan chan<- StreamEvent) (*GenerationResult, error) {
	timeout := h.config.ImageTimeout
	heartbeat := h.config.ImageHeartbeat
	if isVideo {
		timeout = h.config.VideoTimeout
		heartbeat = h.config.VideoHeartbeat
	}

	start := time.Now()
	pollInterval := h.config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2500 * time.Millisecond
	}
	lastHeartbeat := time.Time{}
	lastProgress := float64(0)

	for {
		if time.Since(start) > timeout {
			return nil, apperr.New(apperr.KindUpstreamTimeout, fmt.Sprintf("generation timed out after %v", timeout))
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindCancelled, "generation cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		pendingTask, err := h.soraClient.FindTaskInPending(taskID, token, proxyURL)
		if err != nil {
			continue
		}

		if pendingTask != nil {
			if progress := pendingTask.ProgressPct * 100; progress > lastProgress {
				lastProgress = progress
			}
			if time.Since(lastHeartbeat) >= heartbeat {
				lastHeartbeat = time.Now()
				emitProgress(stream, eventChan, lastProgress, fmt.Sprintf("生成进度: %.0f%%", lastProgress))
			}
			continue
		}

		// Absence from the pending list implies the task reached a terminal
		// state; look it up in the store that kind of task completes into.
		if isVideo {
			draft, err := h.soraClient.FindTaskInVideoDrafts(taskID, token, proxyURL)
			if err != nil {
				continue
			}
			if draft != nil && draft.VideoURL != "" {
				return &GenerationResult{TaskID: taskID, Status: "completed", Progress: 100, URLs: []string{draft.VideoURL}}, nil
			}
			continue
		}

		imageTask, err := h.soraClient.FindTaskInImageTasks(taskID, token, proxyURL)
		if err != nil {
			continue
		}
		if imageTask != nil {
			if urls := ExtractImageURLs(imageTask); len(urls) > 0 {
				return &GenerationResult{TaskID: taskID, Status: "completed", Progress: 100, URLs: urls}, nil
			}
		}
	}
}

// FormatResultAsMarkdown formats the generation result as the markdown body
// of a chat completion: an image grid for image results, and an HTML5
// <video> block (not an image link, which browsers can't play) for video.
func FormatResultAsMarkdown(result *GenerationResult, isVideo bool) string {
	if result == nil || len(result.URLs) == 0 {
		if result != nil && result.Error != "" {
			return fmt.Sprintf("生成失败: %s", result.Error)
		}
		return "生成失败，未获取到结果"
	}

	var sb strings.Builder
	for i, url := range result.URLs {
		if isVideo {
			sb.WriteString(fmt.Sprintf("```html\n<video src=\"%s\" controls></video>\n```\n", url))
		} else {
			sb.WriteString(fmt.Sprintf("![Generated Image %d](%s)\n", i+1, url))
		}
	}
	return sb.String()
}
