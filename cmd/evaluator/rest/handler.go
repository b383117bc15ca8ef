// Package rest exposes submission intake, inspection and cancellation over
// HTTP.
package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/store"
	"github.com/criyle/go-evaluator/types"
	"github.com/criyle/go-evaluator/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register registers the handler
type Register interface {
	Register(*gin.Engine)
}

type handle struct {
	store  store.Store
	worker worker.Worker
	logger *zap.Logger
}

// New creates the submission handle
func New(st store.Store, w worker.Worker, logger *zap.Logger) Register {
	return &handle{store: st, worker: w, logger: logger}
}

func (h *handle) Register(r *gin.Engine) {
	r.POST("/submissions", h.handleSubmit)
	r.GET("/submissions/:id", h.handleGet)
	r.POST("/submissions/:id/cancel", h.handleCancel)
	r.GET("/workers", h.handleWorkers)
}

// SubmitRequest is the body of POST /submissions
type SubmitRequest struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	ProblemID string `json:"problemId" binding:"required"`
	Language  string `json:"programmingLanguage" binding:"required"`
	Source    string `json:"source" binding:"required"`
}

// CancelRequest is the optional body of POST /submissions/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h *handle) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := language.Parse(req.Language); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	sub := &types.Submission{
		ID:        req.ID,
		Author:    req.Author,
		ProblemID: req.ProblemID,
		Created:   time.Now().UTC(),
		Source:    []byte(req.Source),
		Language:  req.Language,
		State:     types.StatePending,
	}
	if err := h.store.Insert(c.Request.Context(), sub); err != nil {
		h.abort(c, err)
		return
	}
	h.logger.Debug("submission received", zap.String("submission", sub.ID), zap.String("problem", sub.ProblemID))
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID})
}

func (h *handle) handleGet(c *gin.Context) {
	sub, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err)
		return
	}
	sub.Source = nil
	c.JSON(http.StatusOK, sub)
}

func (h *handle) handleCancel(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
			return
		}
	}
	var cause error
	if req.Reason != "" {
		cause = errors.New(req.Reason)
	}
	id := c.Param("id")
	if !h.worker.Cancel(id, cause) {
		c.AbortWithStatusJSON(http.StatusConflict, "submission is not being evaluated")
		return
	}
	h.logger.Info("cancel requested", zap.String("submission", id), zap.String("reason", req.Reason))
	c.JSON(http.StatusAccepted, gin.H{"id": id, "cancelled": true})
}

func (h *handle) handleWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"inFlight": h.worker.InFlight()})
}

func (h *handle) abort(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		c.AbortWithStatusJSON(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
	}
}
