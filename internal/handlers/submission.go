package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"codearena/internal/judge"
	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/models"
	"codearena/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SubmissionHandler struct {
	submissions *services.SubmissionService
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submissions *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// CreateSubmission dispatches a user's source code against a problem. The
// response carries only the submission id; judging finishes asynchronously
// and is retrieved through the status endpoint.
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req models.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.submissions.Create(context.Background(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedLanguage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
			return
		}
		logger.Log.Error("Failed to create submission", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process submission"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Submission created successfully",
		"submission_id": submission.ID,
	})
}

// GetSubmissionStatus refreshes and returns the verdict for one submission,
// owner-scoped. A poll timeout is not an error page: the best-known state is
// returned and the submission stays pollable.
func (h *SubmissionHandler) GetSubmissionStatus(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID"})
		return
	}

	view, err := h.submissions.RefreshForUser(context.Background(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoTestCases):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No test cases found for submission"})
			return
		case errors.Is(err, judge.ErrPollTimeout) && view != nil:
			c.JSON(http.StatusOK, gin.H{
				"submission_id": view.SubmissionID,
				"status":        view.Status,
				"testcases":     view.TestCases,
				"timed_out":     true,
			})
			return
		case strings.Contains(err.Error(), "not found"):
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
			return
		default:
			logger.Log.Error("Failed to refresh submission status",
				zap.Int("submission_id", id),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve submission status"})
			return
		}
	}

	response := gin.H{
		"submission_id": view.SubmissionID,
		"status":        view.Status,
		"testcases":     view.TestCases,
	}
	if len(view.Failing) > 0 {
		response["failing_testcases"] = view.Failing
	}

	c.JSON(http.StatusOK, response)
}

func (h *SubmissionHandler) GetUserSubmissions(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	problemSlug := c.Query("problem")
	if problemSlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The problem query parameter is required"})
		return
	}

	submissions, err := h.submissions.History(context.Background(), userID, problemSlug)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
			return
		}
		logger.Log.Error("Failed to get user submissions",
			zap.Int("user_id", userID),
			zap.String("problem", problemSlug),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve submission history"})
		return
	}

	// Format submission times for display
	for i := range submissions {
		submissions[i].FormattedTime = submissions[i].SubmittedAt.Format("Jan 2, 2006 at 3:04 PM")
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	submissionGroup := router.Group("/submissions")
	submissionGroup.Use(auth)
	{
		submissionGroup.POST("", h.CreateSubmission)
		submissionGroup.GET("/:id", h.GetSubmissionStatus)
		submissionGroup.GET("", h.GetUserSubmissions)
	}
}
