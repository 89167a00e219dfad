package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casevault/backend/middleware"
	"github.com/casevault/backend/pkg/logger"
	"github.com/casevault/backend/service"
)

// answerer is the question-answering pipeline behind the query endpoint.
type answerer interface {
	Ask(ctx context.Context, userID, caseID, question string, maxSources int) (*service.Answer, error)
}

type QueryHandler struct {
	answers answerer
}

func NewQueryHandler(answers answerer) *QueryHandler {
	return &QueryHandler{answers: answers}
}

type QueryRequest struct {
	Question   string `json:"question"`
	MaxSources int    `json:"max_sources"`
}

// Ask answers a natural-language question from the case's own evidence.
// Guard refusals and no-evidence answers come back as 200 with the fixed
// texts; only validation problems and dependency failures are errors.
func (h *QueryHandler) Ask(c *gin.Context) {
	userID := middleware.GetUserID(c)
	caseID := c.Param("caseID")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := context.WithValue(c.Request.Context(), logger.CaseIDKey, caseID)

	answer, err := h.answers.Ask(ctx, userID, caseID, req.Question, req.MaxSources)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInputValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Question must not be empty"})
		default:
			// Dependency failures and anything unexpected: full detail in
			// logs, generic message to the user.
			logger.Error(ctx, "query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer question"})
		}
		return
	}

	c.JSON(http.StatusOK, answer)
}
