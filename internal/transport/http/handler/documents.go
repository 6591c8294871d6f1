package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transitchat/internal/cache"
	"transitchat/internal/transport/http/response"
)

// DocumentsHandler exposes the reference-document configuration and cache
// state for debugging grounding issues.
type DocumentsHandler struct {
	documents *cache.DocumentCache
}

func NewDocumentsHandler(documents *cache.DocumentCache) *DocumentsHandler {
	return &DocumentsHandler{documents: documents}
}

func (h *DocumentsHandler) Status(c *gin.Context) {
	if _, ok := getEmailFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	result := gin.H{"files": h.documents.Status()}
	if sessionID := c.Query("session_id"); sessionID != "" {
		result["session_id"] = sessionID
		result["warm_handles"] = h.documents.Warm(sessionID)
	}

	response.OK(c, result)
}
