// Favorite HTTP handlers.
//
// This file exposes REST endpoints for favorites:
//   - POST /logs/{id}/favorite  (save a finalized log as a favorite)
//   - GET  /favorites           (list, paginated)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/services"
)

// CreateFavoriteRequest is the JSON payload for saving a favorite.
type CreateFavoriteRequest struct {
	// Notes optionally annotates the favorite.
	Notes string `json:"notes" example:"weeknight staple"`
}

// ListFavoritesResponse wraps a page of favorites and pagination information.
type ListFavoritesResponse struct {
	Favorites  []domain.FavoriteMeal `json:"favorites"`
	Pagination Pagination            `json:"pagination"`
}

// CreateFavorite godoc
// @ID          createFavorite
// @Summary     Save a log as a favorite
// @Description Builds a reusable favorite from a finalized log: display name from the locale-resolved translation, totals from the stored record.
// @Tags        Favorites
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Log ID (UUID)"          format(uuid)
// @Param       body       body    handlers.CreateFavoriteRequest  false "Optional notes"
//
// @Success     201  {object}  domain.FavoriteMeal
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Log not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Favorite already exists or log not finalized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /logs/{id}/favorite [post]
func (h *Handlers) CreateFavorite(c *gin.Context) {
	logID := c.Param("id")
	if _, err := uuid.Parse(logID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "log id must be a UUID")
		return
	}

	var req CreateFavoriteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	fav, err := h.favSvc.Create(c.Request.Context(), userID(c), logID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLogNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "log not found")
		case errors.Is(err, services.ErrLogNotFinalized):
			fail(c, http.StatusConflict, ErrCodeInvalidState, "log is not finalized")
		case errors.Is(err, services.ErrDuplicateFavorite):
			fail(c, http.StatusConflict, ErrCodeConflict, "favorite already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not save favorite")
		}
		return
	}

	ok(c, http.StatusCreated, fav)
}

// ListFavorites godoc
// @ID          listFavorites
// @Summary     List favorites (paginated)
// @Description Returns a page of the user's favorites, most recent first.
// @Tags        Favorites
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListFavoritesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /favorites [get]
func (h *Handlers) ListFavorites(c *gin.Context) {
	uid := userID(c)
	page, pageSize := clampPagination(c)

	items, total, err := h.favSvc.ListPage(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListFavoritesResponse{
		Favorites: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
