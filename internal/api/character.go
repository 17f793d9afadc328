package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"sorabroker/internal/database"
	"sorabroker/internal/models"
	"sorabroker/internal/services"
)

// CharacterHandler handles character-related API requests
type CharacterHandler struct {
	db         *database.DB
	soraClient *services.SoraClient
}

// NewCharacterHandler creates a new CharacterHandler
func NewCharacterHandler(db *database.DB, soraClient *services.SoraClient) *CharacterHandler {
	return &CharacterHandler{
		db:         db,
		soraClient: soraClient,
	}
}

// HandleGetCharacters returns all characters
func (h *CharacterHandler) HandleGetCharacters(c *gin.Context) {
	characters, err := h.db.GetAllCharacters()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

// HandleGetCharacter returns a single character by ID
func (h *CharacterHandler) HandleGetCharacter(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character ID"})
		return
	}

	character, err := h.db.GetCharacterByID(id)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"character": character})
}

// HandleUploadCharacterVideo handles video upload for character creation
func (h *CharacterHandler) HandleUploadCharacterVideo(c *gin.Context) {
	var req struct {
		TokenID    int64  `json:"token_id" binding:"required"`
		VideoData  string `json:"video_data" binding:"required"` // Base64 encoded video
		Timestamps string `json:"timestamps"`                    // e.g., "0-5" for 0 to 5 seconds
		Username   string `json:"username" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Get the token
	token, err := h.db.GetTokenByID(req.TokenID)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Decode base64 video data
	videoData, err := base64.StdEncoding.DecodeString(req.VideoData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video data encoding"})
		return
	}

	// Get proxy URL from system config
	config, _ := h.db.GetSystemConfig()
	proxyURL := ""
	if config != nil && config.ProxyEnabled {
		proxyURL = config.ProxyURL
	}
	// Token-specific proxy takes precedence
	if token.ProxyURL != "" {
		proxyURL = token.ProxyURL
	}

	// Upload video and create cameo
	timestamps := req.Timestamps
	if timestamps == "" {
		timestamps = "0-5"
	}

	cameoID, err := h.soraClient.UploadCharacterVideo(videoData, token.Token, timestamps, proxyURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload video: " + err.Error()})
		return
	}

	// Create character record in database
	character := &models.Character{
		CameoID:     cameoID,
		Username:    req.Username,
		DisplayName: req.Username,
		Visibility:  models.CharacterVisibilityPrivate,
		Status:      models.CharacterStatusProcessing,
		TokenID:     req.TokenID,
	}

	charID, err := h.db.CreateCharacter(character)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save character: " + err.Error()})
		return
	}

	character.ID = charID

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"character": character,
		"cameo_id":  cameoID,
	})
}

// HandleGetCameoStatus gets the processing status of a cameo
func (h *CharacterHandler) HandleGetCameoStatus(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character ID"})
		return
	}

	character, err := h.db.GetCharacterByID(id)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Get the token
	token, err := h.db.GetTokenByID(character.TokenID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get token: " + err.Error()})
		return
	}

	// Get proxy URL
	config, _ := h.db.GetSystemConfig()
	proxyURL := ""
	if config != nil && config.ProxyEnabled {
		proxyURL = config.ProxyURL
	}
	if token.ProxyURL != "" {
		proxyURL = token.ProxyURL
	}

	// Get cameo status from Sora API
	status, usernameHint, displayNameHint, profileAssetURL, err := h.soraClient.GetCameoStatus(character.CameoID, token.Token, proxyURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get cameo status: " + err.Error()})
		return
	}

	// Update character if status changed
	if status != character.Status || profileAssetURL != character.ProfileURL {
		character.Status = status
		character.ProfileURL = profileAssetURL
		h.db.UpdateCharacter(character)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"username_hint":     usernameHint,
		"display_name_hint": displayNameHint,
		"profile_asset_url": profileAssetURL,
		"character":         character,
	})
}

// HandleFinalizeCharacter mirrors the avatar and finalizes the character
// with a username and display name. It downloads the profile asset the
// cameo-status poll surfaced, re-uploads it as the character's avatar to
// get an asset pointer, then finalizes; when visibility is "public" it
// additionally flips the cameo to public in a follow-up call.
func (h *CharacterHandler) HandleFinalizeCharacter(c *gin.Context) {
	var req struct {
		CharacterID int64  `json:"character_id" binding:"required"`
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"display_name" binding:"required"`
		Visibility  string `json:"visibility"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Get the character
	character, err := h.db.GetCharacterByID(req.CharacterID)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if character.ProfileURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cameo has no profile asset yet; poll status until it appears"})
		return
	}

	// Get the token
	token, err := h.db.GetTokenByID(character.TokenID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get token"})
		return
	}

	// Get proxy URL
	config, _ := h.db.GetSystemConfig()
	proxyURL := ""
	if config != nil && config.ProxyEnabled {
		proxyURL = config.ProxyURL
	}
	if token.ProxyURL != "" {
		proxyURL = token.ProxyURL
	}

	avatar, err := h.soraClient.DownloadCharacterImage(character.ProfileURL, proxyURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to download profile asset: " + err.Error()})
		return
	}

	assetPointer, err := h.soraClient.UploadCharacterImage(avatar, token.Token, proxyURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload character avatar: " + err.Error()})
		return
	}

	// Finalize with Sora API
	characterID, err := h.soraClient.FinalizeCharacter(
		character.CameoID,
		req.Username,
		req.DisplayName,
		assetPointer,
		token.Token,
		proxyURL,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize character: " + err.Error()})
		return
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.CharacterVisibilityPrivate
	}
	if visibility == models.CharacterVisibilityPublic {
		if err := h.soraClient.SetCharacterPublic(character.CameoID, token.Token, proxyURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set character public: " + err.Error()})
			return
		}
	}

	// Update character in database
	character.CharacterID = characterID
	character.Username = req.Username
	character.DisplayName = req.DisplayName
	character.Visibility = visibility
	character.Status = models.CharacterStatusFinalized

	if err := h.db.UpdateCharacter(character); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update character: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"character": character,
	})
}

// HandleDeleteCharacter deletes a character
func (h *CharacterHandler) HandleDeleteCharacter(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character ID"})
		return
	}

	// Get the character
	character, err := h.db.GetCharacterByID(id)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Get the token
	token, err := h.db.GetTokenByID(character.TokenID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get token"})
		return
	}

	// Get proxy URL
	config, _ := h.db.GetSystemConfig()
	proxyURL := ""
	if config != nil && config.ProxyEnabled {
		proxyURL = config.ProxyURL
	}
	if token.ProxyURL != "" {
		proxyURL = token.ProxyURL
	}

	// Delete from Sora API; only finalized characters have a character_id
	// the upstream delete endpoint accepts. A cameo that never finalized
	// has no corresponding upstream resource to clean up.
	if character.CharacterID != "" {
		if err := h.soraClient.DeleteCharacter(character.CharacterID, token.Token, proxyURL); err != nil {
			// Log error but continue with local deletion; the character
			// might already be gone on Sora's side.
		}
	}

	// Delete from local database
	if err := h.db.DeleteCharacter(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete character: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "character deleted",
	})
}

// HandleSearchCharacters searches the local character catalog by username
// or display name. There is no upstream character-search endpoint in the
// mobile client's closed API surface, so this is a local-only lookup.
func (h *CharacterHandler) HandleSearchCharacters(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "search query is required"})
		return
	}

	characters, err := h.db.SearchCharacters(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"characters": characters,
	})
}
