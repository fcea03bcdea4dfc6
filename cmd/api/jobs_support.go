package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/auth"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/storage"
)

// jobAPI はジョブAPIとコンテキストAPIのハンドラーをまとめます。
type jobAPI struct {
	dispatcher *jobs.Dispatcher
	registry   *jobs.Registry
	cache      listing.Cache
	results    *storage.Local
}

type startJobRequest struct {
	Context jobs.ContextID   `json:"context"`
	Kind    string           `json:"kind"`
	Payload *listing.Listing `json:"payload"`
}

// startJob は POST /api/jobs のハンドラーです。
// payload を省略した場合はコンテキストにキャッシュされたスクレイプ結果を使います。
func (a *jobAPI) startJob(c *gin.Context) {
	var req startJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "request body must be JSON: {context, kind, payload?}",
		})
		return
	}

	contextID := req.Context
	if strings.TrimSpace(string(contextID)) == "" {
		contextID = auth.PinnedContext(c)
	}

	kind, err := jobs.ParseKind(req.Kind)
	if err != nil {
		respondPrecondition(c, err)
		return
	}

	ctx := c.Request.Context()
	var payload listing.Listing
	switch {
	case req.Payload != nil:
		payload = *req.Payload
	case contextID != "":
		cached, ok, err := a.cache.Get(ctx, string(contextID))
		if err != nil {
			logger.WithContextID(string(contextID)).Warn().Err(err).Msg("failed to read cached payload")
		}
		if ok {
			payload = cached
		}
	}

	jobID, err := a.dispatcher.StartGeneration(ctx, contextID, kind, payload)
	if err != nil {
		if jobs.IsPrecondition(err) {
			respondPrecondition(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "failed to start generation",
		})
		return
	}

	// 受け付けたジョブのデータだけをキャッシュします。拒否されたリクエストで既存データを上書きしません。
	if req.Payload != nil {
		if err := a.cache.Put(ctx, string(contextID), payload); err != nil {
			logger.WithContextID(string(contextID)).Warn().Err(err).Msg("failed to cache payload")
		}
	}

	if err := auth.PinContext(c, contextID); err != nil {
		logger.WithContextID(string(contextID)).Debug().Err(err).Msg("failed to pin context")
	}

	status := jobs.StatusRunning
	if record, ok := a.registry.Get(jobID); ok {
		status = record.Status
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": status,
	})
}

// listJobs は GET /api/jobs のハンドラーです。
// context と status（カンマ区切り）で絞り込み、includeRunning=true なら実行中のジョブも含めます。
func (a *jobAPI) listJobs(c *gin.Context) {
	var preds []jobs.Predicate
	if id := strings.TrimSpace(c.Query("context")); id != "" {
		preds = append(preds, jobs.ByContext(jobs.ContextID(id)))
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		var statuses []jobs.Status
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, jobs.Status(strings.ToLower(s)))
			}
		}
		preds = append(preds, jobs.ByStatus(statuses...))
	}

	pred := jobs.And(preds...)
	if c.Query("includeRunning") == "true" {
		pred = jobs.Or(pred, jobs.ByStatus(jobs.StatusRunning))
	}

	records := a.registry.List(pred)
	if records == nil {
		records = []jobs.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

// getJob は GET /api/jobs/:id のハンドラーです。
func (a *jobAPI) getJob(c *gin.Context) {
	record, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

// downloadJob は GET /api/jobs/:id/download のハンドラーです。
func (a *jobAPI) downloadJob(c *gin.Context) {
	record, ok := a.lookup(c)
	if !ok {
		return
	}
	if record.Status != jobs.StatusCompleted || record.Result == nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "JOB_NOT_COMPLETED",
			"message": fmt.Sprintf("job is %s", record.Status),
		})
		return
	}

	object, file, err := a.results.Open(record.JobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_RESULT_NOT_FOUND",
				"message": "result file was not found",
			})
			return
		}
		logger.WithJobID(record.JobID).Error().Err(err).Msg("failed to open result")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "failed to open result",
		})
		return
	}
	defer file.Close()

	contentType := record.Result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	encodedName := url.PathEscape(object.Filename)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", object.Filename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", record.JobID)
	c.DataFromReader(http.StatusOK, object.Size, contentType, file, nil)
}

func (a *jobAPI) lookup(c *gin.Context) (jobs.Record, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId is required",
		})
		return jobs.Record{}, false
	}
	record, ok := a.registry.Get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "job does not exist or has expired",
		})
		return jobs.Record{}, false
	}
	return record, true
}

// putPayload は PUT /api/contexts/:id/payload のハンドラーです。
func (a *jobAPI) putPayload(c *gin.Context) {
	contextID := jobs.ContextID(c.Param("id"))
	var payload listing.Listing
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "payload must be a listing JSON object",
		})
		return
	}
	if err := a.cache.Put(c.Request.Context(), string(contextID), payload); err != nil {
		logger.WithContextID(string(contextID)).Error().Err(err).Msg("failed to cache payload")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "CACHE_ERROR",
			"message": "failed to store payload",
		})
		return
	}
	if err := auth.PinContext(c, contextID); err != nil {
		logger.WithContextID(string(contextID)).Debug().Err(err).Msg("failed to pin context")
	}
	c.Status(http.StatusNoContent)
}

// getPayload は GET /api/contexts/:id/payload のハンドラーです。
func (a *jobAPI) getPayload(c *gin.Context) {
	contextID := c.Param("id")
	payload, ok, err := a.cache.Get(c.Request.Context(), contextID)
	if err != nil {
		logger.WithContextID(contextID).Error().Err(err).Msg("failed to read cached payload")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "CACHE_ERROR",
			"message": "failed to read payload",
		})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "PAYLOAD_NOT_FOUND",
			"message": "no listing data for this context",
		})
		return
	}
	c.JSON(http.StatusOK, payload)
}

// deleteContext は DELETE /api/contexts/:id のハンドラーです。実行中のジョブには影響しません。
func (a *jobAPI) deleteContext(c *gin.Context) {
	contextID := jobs.ContextID(c.Param("id"))
	if !a.invalidate(c, contextID) {
		return
	}
	auth.ForgetContext(c, contextID)
	c.Status(http.StatusNoContent)
}

// navigateContext は POST /api/contexts/:id/navigate のハンドラーです。URLが変わったのでキャッシュを捨てます。
func (a *jobAPI) navigateContext(c *gin.Context) {
	if !a.invalidate(c, jobs.ContextID(c.Param("id"))) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *jobAPI) invalidate(c *gin.Context, contextID jobs.ContextID) bool {
	if err := a.cache.Invalidate(c.Request.Context(), string(contextID)); err != nil {
		logger.WithContextID(string(contextID)).Error().Err(err).Msg("failed to invalidate payload")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "CACHE_ERROR",
			"message": "failed to invalidate payload",
		})
		return false
	}
	return true
}

func respondPrecondition(c *gin.Context, err error) {
	code := "INVALID_INPUT"
	message := err.Error()
	switch {
	case errors.Is(err, listing.ErrNoImages):
		code = "NO_IMAGES"
		message = "No images found for this listing"
	case errors.Is(err, jobs.ErrUnknownKind):
		code = "UNKNOWN_KIND"
	case errors.Is(err, jobs.ErrMissingContext):
		code = "MISSING_CONTEXT"
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    code,
		"message": message,
	})
}
