package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ytgrab/internal/domain/entity"
	"ytgrab/internal/domain/usecase"
)

type DownloadUseCase interface {
	Submit(ctx context.Context, rawURL string) (*entity.Job, error)
	Status(ctx context.Context, jobID string) (entity.Job, error)
	Cleanup(ctx context.Context, jobID string) error
}

type JobHandler struct {
	UseCase   DownloadUseCase
	IndexPath string
}

func NewJobHandler(u DownloadUseCase, indexPath string) *JobHandler {
	return &JobHandler{UseCase: u, IndexPath: indexPath}
}

type downloadRequest struct {
	URL string `json:"url"`
}

func (h *JobHandler) Home(c *gin.Context) {
	c.File(h.IndexPath)
}

func (h *JobHandler) StartDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	job, err := h.UseCase.Submit(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, usecase.ErrUnsupportedURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "download started",
	})
}

func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.UseCase.Status(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) Cleanup(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := h.UseCase.Cleanup(c.Request.Context(), jobID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}
