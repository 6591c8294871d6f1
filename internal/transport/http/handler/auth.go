package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transitchat/internal/app"
	"transitchat/internal/transport/http/middleware"
	"transitchat/internal/transport/http/response"
)

const stateCookieName = "oauth_state"

type AuthHandler struct {
	authService *app.AuthService
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// GoogleLogin returns the consent URL and sets the anti-forgery state as a
// short-lived cookie.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state, err := randomState()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "generate state failed")
		return
	}

	c.SetCookie(stateCookieName, state, 600, "/", "", false, true)
	response.OK(c, gin.H{"auth_url": h.authService.LoginURL(state)})
}

func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	expectedState, err := c.Cookie(stateCookieName)
	if err != nil || expectedState == "" || c.Query("state") != expectedState {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "oauth state mismatch")
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/", "", false, true)

	result, err := h.authService.HandleCallback(c.Request.Context(), c.Query("code"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrOAuthExchange):
			response.Error(c, http.StatusUnauthorized, response.CodeOAuthFailed, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *AuthHandler) Me(c *gin.Context) {
	email, ok := getEmailFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.authService.GetUser(email)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load profile failed")
		return
	}

	response.OK(c, gin.H{
		"email":       user.Email,
		"name":        user.Name,
		"picture":     user.Picture,
		"has_api_key": user.APIKey != "",
		"created_at":  user.CreatedAt,
	})
}

type SaveAPIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required,min=8,max=256"`
}

func (h *AuthHandler) SaveAPIKey(c *gin.Context) {
	email, ok := getEmailFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SaveAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.authService.SaveAPIKey(c.Request.Context(), email, req.APIKey); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrAPIKeyInvalid):
			response.Error(c, http.StatusBadRequest, response.CodeAPIKeyRejected, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save api key failed")
		}
		return
	}

	response.OK(c, gin.H{"saved": true})
}

func (h *AuthHandler) ClearAPIKey(c *gin.Context) {
	email, ok := getEmailFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.authService.ClearAPIKey(email); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear api key failed")
		return
	}

	response.OK(c, gin.H{"cleared": true})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func getEmailFromContext(c *gin.Context) (string, bool) {
	emailAny, exists := c.Get(middleware.ContextEmailKey)
	if !exists {
		return "", false
	}
	email, ok := emailAny.(string)
	return email, ok && email != ""
}
