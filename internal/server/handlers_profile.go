package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"glucoguide/backend/internal/chat"
)

// getMedicalProfile returns the snapshot the assistant sees for the caller.
func (a *App) getMedicalProfile(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	medical, err := a.medical.loadMedicalContext(c.Request.Context(), user.ID)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", user.ID).Msg("load medical context failed")
		writeError(c, http.StatusInternalServerError, "Failed to load medical profile")
		return
	}

	response := gin.H{
		"user_id":         user.ID,
		"has_profile":     medical != nil,
		"medical_context": medical,
	}
	if medical != nil {
		response["diabetes_type_label"] = chat.DiabetesTypeName(medical.DiabetesType)
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) searchResources(c *gin.Context) {
	if _, ok := authUserFromContext(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		writeError(c, http.StatusBadRequest, "q is required")
		return
	}

	resources, err := a.matcher.FindRelevant(c.Request.Context(), query)
	if err != nil {
		a.log.Error().Err(err).Str("query", query).Msg("resource search failed")
		writeError(c, http.StatusInternalServerError, "Failed to search resources")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":     query,
		"keywords":  chat.ExtractKeywords(query),
		"resources": resources,
	})
}
