package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/models"
	"codearena/internal/repositories"
	"codearena/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProblemHandler struct {
	problemRepo repositories.ProblemRepository
	verifier    *services.VerificationService
}

// NewProblemHandler creates a new problem handler
func NewProblemHandler(problemRepo repositories.ProblemRepository, verifier *services.VerificationService) *ProblemHandler {
	return &ProblemHandler{
		problemRepo: problemRepo,
		verifier:    verifier,
	}
}

// GetProblems returns a list of all problems with minimal information
func (h *ProblemHandler) GetProblems(c *gin.Context) {
	problems, err := h.problemRepo.GetProblems(context.Background())
	if err != nil {
		logger.Log.Error("Failed to get problems", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve problems"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"problems": problems,
	})
}

// GetProblemBySlug returns detailed information about a specific problem
func (h *ProblemHandler) GetProblemBySlug(c *gin.Context) {
	slug := c.Param("slug")

	problem, err := h.problemRepo.GetProblemBySlug(context.Background(), slug)
	if err != nil {
		logger.Log.Error("Failed to get problem",
			zap.String("slug", slug),
			zap.Error(err))

		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve problem details"})
		return
	}

	c.JSON(http.StatusOK, problem)
}

// CreateProblem verifies every reference solution against every test case
// before anything touches the database. Verification is all-or-nothing:
// a single failing combination blocks the whole problem.
func (h *ProblemHandler) CreateProblem(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req models.CreateProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := req.ToDraft()

	if err := h.verifier.VerifyReferenceSolutions(context.Background(), draft); err != nil {
		var verr *services.VerificationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          verr.Error(),
				"language":       verr.Language,
				"testcase_index": verr.TestCaseIndex,
				"result":         verr.Result,
			})
		case errors.Is(err, services.ErrUnsupportedLanguage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Log.Error("Problem verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify reference solutions"})
		}
		return
	}

	problem, err := h.problemRepo.CreateProblem(context.Background(), draft, userID)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			c.JSON(http.StatusConflict, gin.H{"error": "Problem with this title already exists"})
			return
		}
		logger.Log.Error("Failed to create problem", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create problem"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Problem created successfully",
		"problem": problem,
	})
}

// RegisterRoutes registers the problem handler routes
func (h *ProblemHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	problemGroup := router.Group("/problems")
	{
		problemGroup.GET("", h.GetProblems)
		problemGroup.GET("/:slug", h.GetProblemBySlug)
		problemGroup.POST("", auth, h.CreateProblem)
	}
}
