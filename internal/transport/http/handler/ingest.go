package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"finrag/internal/app"
	"finrag/internal/cache"
	"finrag/internal/pkg/pdfextract"
	"finrag/internal/transport/http/response"
)

const (
	maxPDFSize = 20 << 20 // 20 MB
	// room for the other form fields and multipart framing
	multipartOverhead = 1 << 20
)

type JobQueue interface {
	Enqueue(ctx context.Context, input app.IngestInput) (*app.IngestJob, error)
	Status(ctx context.Context, id string) (*cache.JobStatus, error)
}

type IngestHandler struct {
	jobs      JobQueue
	maxUpload int64
}

type IngestRequest struct {
	Ticker     string             `json:"ticker" binding:"required,max=16"`
	CompanyID  string             `json:"company_id"`
	Source     string             `json:"source" binding:"max=32"`
	FiscalYear string             `json:"fiscal_year" binding:"max=16"`
	Sections   []app.SectionInput `json:"sections" binding:"required,min=1"`
}

type JobResponse struct {
	JobID  string `json:"job_id"`
	Ticker string `json:"ticker"`
}

func NewIngestHandler(jobs JobQueue) *IngestHandler {
	return &IngestHandler{jobs: jobs, maxUpload: maxPDFSize}
}

func (h *IngestHandler) Enqueue(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), app.IngestInput{
		Ticker:     req.Ticker,
		CompanyID:  req.CompanyID,
		Source:     req.Source,
		FiscalYear: req.FiscalYear,
		Sections:   req.Sections,
	})
	if err != nil {
		writeError(c, err, "enqueue failed")
		return
	}
	response.Accepted(c, JobResponse{JobID: job.ID, Ticker: job.Ticker})
}

// UploadPDF accepts a multipart form with "file" (PDF), "ticker" and an
// optional "section", extracts the text and enqueues it.
func (h *IngestHandler) UploadPDF(c *gin.Context) {
	limit := h.maxUpload + multipartOverhead
	if c.Request.ContentLength > limit {
		h.fileTooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fileTooLarge(c)
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUpload {
		h.fileTooLarge(c)
		return
	}

	ticker := strings.TrimSpace(c.PostForm("ticker"))
	if ticker == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing ticker")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	text, err := pdfextract.ExtractText(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from PDF: "+err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "PDF contains no extractable text")
		return
	}

	section := strings.TrimSpace(c.PostForm("section"))
	if section == "" {
		section = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), app.IngestInput{
		Ticker:     ticker,
		Source:     c.PostForm("source"),
		FiscalYear: c.PostForm("fiscal_year"),
		Sections:   []app.SectionInput{{Name: section, Text: text}},
	})
	if err != nil {
		writeError(c, err, "enqueue failed")
		return
	}
	response.Accepted(c, JobResponse{JobID: job.ID, Ticker: job.Ticker})
}

func (h *IngestHandler) fileTooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge,
		fmt.Sprintf("file too large (max %dMB)", h.maxUpload>>20))
}

func (h *IngestHandler) Status(c *gin.Context) {
	status, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "job status failed")
		return
	}
	response.OK(c, status)
}
