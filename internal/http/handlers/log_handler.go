// Meal log HTTP handlers.
//
// This file exposes REST endpoints for meal ingestion:
//   - POST /log              (submit a meal for analysis, multipart)
//   - POST /log/choose-slot  (finalize a log awaiting slot choice)
//   - GET  /logs             (list, paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/http/middleware"
	"github.com/nutrilog/go-meal-backend/internal/services"
	"github.com/nutrilog/go-meal-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// IngestService defines the ingestion operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IngestService interface {
	// Submit runs a guarded, hedged analysis of one meal submission.
	Submit(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error)
	// ChooseSlot finalizes a log awaiting selection with one of its candidates.
	ChooseSlot(ctx context.Context, userID, logID, slotID string) (*domain.MealLog, error)
	// ListPage returns a page of the user's logs and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.LogSummary, int64, error)
	// Stats returns (count, max updated_at) for the user's logs, for ETags.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// FavoriteService defines favorite operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type FavoriteService interface {
	// Create persists a favorite built from one of the user's finalized logs.
	Create(ctx context.Context, userID, logID, notes string) (*domain.FavoriteMeal, error)
	// ListPage returns a page of the user's favorites and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.FavoriteMeal, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for logs and favorites. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	ingestSvc IngestService
	favSvc    FavoriteService

	// maxImageBytes caps how much of an uploaded image is read; 0 means
	// no handler-side cap (the service still enforces its own).
	maxImageBytes int64
}

// New constructs and returns a Handlers instance bound to the given services.
func New(ingestSvc IngestService, favSvc FavoriteService, maxImageBytes int64) *Handlers {
	return &Handlers{ingestSvc: ingestSvc, favSvc: favSvc, maxImageBytes: maxImageBytes}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// ChooseSlotRequest is the JSON payload for finalizing a log.
type ChooseSlotRequest struct {
	// LogID identifies the log awaiting slot choice.
	LogID string `json:"log_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// SlotID identifies one of the log's proposed candidates.
	SlotID string `json:"slot_id" binding:"required" example:"8c2f9a31-77f0-4c85-b1da-4f5d0e2b9c01"`
}

// LogResponse wraps an ingestion outcome: the log plus its open slot
// candidates when a choice is pending.
type LogResponse struct {
	Log *domain.MealLog `json:"log"`
	// Candidates is non-empty only while the log awaits a slot choice.
	Candidates []domain.SlotCandidate `json:"candidates,omitempty"`
	// Duplicate is true when this outcome was replayed from an earlier
	// submission with the same idempotency key.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListLogsResponse wraps a page of logs and pagination information.
type ListLogsResponse struct {
	Logs       []domain.LogSummary `json:"logs"`
	Pagination Pagination          `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// readImage extracts the optional image upload, bounded by maxImageBytes.
func (h *Handlers) readImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	if h.maxImageBytes > 0 && fh.Size > h.maxImageBytes {
		return nil, services.ErrImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := io.Reader(f)
	if h.maxImageBytes > 0 {
		r = io.LimitReader(f, h.maxImageBytes+1)
	}
	img, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if h.maxImageBytes > 0 && int64(len(img)) > h.maxImageBytes {
		return nil, services.ErrImageTooLarge
	}
	return img, nil
}

// requestLocale picks the submission locale: explicit form field first, then
// the first Accept-Language entry. Empty means the server default applies.
func requestLocale(c *gin.Context) string {
	if loc := strings.TrimSpace(c.PostForm("locale")); loc != "" {
		return loc
	}
	al := c.GetHeader("Accept-Language")
	if al == "" {
		return ""
	}
	first := strings.SplitN(al, ",", 2)[0]
	first = strings.SplitN(first, ";", 2)[0]
	return strings.TrimSpace(first)
}

// submitError maps a Submit service error to an HTTP response.
func submitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyInput):
		fail(c, http.StatusBadRequest, ErrCodeEmptyInput, "message or image required")
	case errors.Is(err, services.ErrImageTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge, "image exceeds size limit")
	case errors.Is(err, services.ErrAnalysisTimeout):
		fail(c, http.StatusInternalServerError, ErrCodeUpstreamTimeout, "analysis timed out, try again later")
	case errors.Is(err, services.ErrAnalysisFailed):
		fail(c, http.StatusInternalServerError, ErrCodeUpstreamFailed, "analysis failed, try again later")
	case errors.Is(err, services.ErrRequestInFlight):
		fail(c, http.StatusConflict, ErrCodeInFlight, "the same submission is already being processed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not process submission")
	}
}

//
// Handlers
//

// PostLog godoc
// @ID          postLog
// @Summary     Submit a meal for analysis
// @Description Analyzes a meal from a text message and/or an image. Returns either a finalized log or a log awaiting slot choice with candidate slots. Supply an Idempotency-Key header to make retries safe.
// @Tags        Logs
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-User-ID        header    string  false "User ID (demo header)"        example(user123)
// @Param       Idempotency-Key  header    string  false "Opaque dedup key for retries" example(sub-7f3a)
// @Param       message          formData  string  false "Meal description"
// @Param       image            formData  file    false "Meal photo"
// @Param       locale           formData  string  false "Preferred locale (BCP 47)"    example(el-GR)
//
// @Success     200  {object}  handlers.LogResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Neither message nor image supplied"
// @Failure     409  {object}  handlers.ErrorResponse  "Submission already in flight"
// @Failure     413  {object}  handlers.ErrorResponse  "Image too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Upstream timeout or failure"
// @Router      /log [post]
func (h *Handlers) PostLog(c *gin.Context) {
	img, err := h.readImage(c)
	if err != nil {
		if errors.Is(err, services.ErrImageTooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge, "image exceeds size limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid image upload")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	out, err := h.ingestSvc.Submit(c.Request.Context(), services.SubmitInput{
		UserID:         userID(c),
		Message:        c.PostForm("message"),
		Image:          img,
		Locale:         requestLocale(c),
		IdempotencyKey: key,
	})
	if err != nil {
		submitError(c, err)
		return
	}

	ok(c, http.StatusOK, LogResponse{
		Log:        out.Log,
		Candidates: out.Candidates,
		Duplicate:  out.Duplicate,
	})
}

// ChooseSlot godoc
// @ID          chooseSlot
// @Summary     Finalize a log with a slot choice
// @Description Selects one of the proposed slot candidates for a log awaiting choice and finalizes it.
// @Tags        Logs
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ChooseSlotRequest  true  "Slot choice"
//
// @Success     200  {object}  handlers.LogResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Log or slot not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Log is not awaiting slot choice"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /log/choose-slot [post]
func (h *Handlers) ChooseSlot(c *gin.Context) {
	var req ChooseSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "log_id and slot_id required")
		return
	}
	if _, err := uuid.Parse(req.LogID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "log_id must be a UUID")
		return
	}

	log, err := h.ingestSvc.ChooseSlot(c.Request.Context(), userID(c), req.LogID, req.SlotID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLogNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "log not found")
		case errors.Is(err, services.ErrSlotNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "slot not found")
		case errors.Is(err, services.ErrInvalidState):
			fail(c, http.StatusConflict, ErrCodeInvalidState, "log is not awaiting slot choice")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not finalize log")
		}
		return
	}

	ok(c, http.StatusOK, LogResponse{Log: log})
}

// ListLogs godoc
// @ID          listLogs
// @Summary     List meal logs (paginated)
// @Description Returns a page of the user's logs. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Logs
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListLogsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /logs [get]
func (h *Handlers) ListLogs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.ingestSvc.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"logs:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.ingestSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListLogsResponse{
		Logs: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
