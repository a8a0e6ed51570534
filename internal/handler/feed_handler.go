package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/circle-calendar-api/internal/dto"
	"github.com/noah-isme/circle-calendar-api/internal/middleware"
	"github.com/noah-isme/circle-calendar-api/internal/service"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/response"
)

type feedService interface {
	CreateLink(actorID, displayName string) (service.FeedLink, error)
	Render(ctx context.Context, token string) (service.ExportFile, bool, error)
}

// FeedHandler issues and serves subscribable calendar feeds.
type FeedHandler struct {
	feeds feedService
}

// NewFeedHandler constructs the handler.
func NewFeedHandler(feeds feedService) *FeedHandler {
	return &FeedHandler{feeds: feeds}
}

// CreateLink godoc
// @Summary Create a signed ICS feed link
// @Tags Feeds
// @Accept json
// @Produce json
// @Param payload body dto.FeedLinkRequest false "Calendar name"
// @Success 201 {object} response.Envelope
// @Router /feeds/link [post]
func (h *FeedHandler) CreateLink(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FeedLinkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
			return
		}
	}
	name := req.DisplayName
	if name == "" {
		name = displayName(claims)
	}

	link, err := h.feeds.CreateLink(claims.Actor(), name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, link)
}

// Calendar godoc
// @Summary ICS calendar feed
// @Description Public endpoint authenticated by the signed token of a feed link.
// @Tags Feeds
// @Produce text/calendar
// @Param token query string true "Feed token"
// @Success 200 {file} file
// @Router /feeds/calendar.ics [get]
func (h *FeedHandler) Calendar(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "feed token is required"))
		return
	}
	file, cached, err := h.feeds.Render(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Disposition", `inline; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
