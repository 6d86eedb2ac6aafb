package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/castline/castline/internal/domain"
)

const requesterHeader = "X-User-ID"

type streamResponse struct {
	ID         string             `json:"id"`
	UID        string             `json:"uid"`
	Name       string             `json:"name"`
	Visibility string             `json:"enumMode"`
	Status     string             `json:"status"`
	StartedAt  time.Time          `json:"startedAt"`
	EndedAt    *time.Time         `json:"endedAt,omitempty"`
	Likes      int                `json:"likes"`
	Owner      ownerResponse      `json:"user"`
	Categories []categoryResponse `json:"categories"`
}

type ownerResponse struct {
	FullName string `json:"fullName"`
	NickName string `json:"nickName"`
	Avatar   string `json:"avatar"`
}

type categoryResponse struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

type listStreamsResponse struct {
	Streams    []streamResponse `json:"streams"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	TotalPages int64            `json:"totalPages"`
}

func toStreamResponse(s domain.StreamWithSummaries) streamResponse {
	resp := streamResponse{
		ID:         s.ID,
		UID:        s.UID,
		Name:       s.Name,
		Visibility: string(s.Visibility),
		Status:     string(s.Status),
		StartedAt:  s.StartedAt,
		Likes:      len(s.LikedBy),
		Owner: ownerResponse{
			FullName: s.Owner.FullName,
			NickName: s.Owner.NickName,
			Avatar:   s.Owner.Avatar,
		},
		Categories: make([]categoryResponse, 0, len(s.Categories)),
	}
	if !s.EndedAt.IsZero() {
		endedAt := s.EndedAt
		resp.EndedAt = &endedAt
	}
	for _, c := range s.Categories {
		resp.Categories = append(resp.Categories, categoryResponse{Name: c.Name, ImageURL: c.ImageURL})
	}
	return resp
}

func (s *Server) handleListStreams(c echo.Context) error {
	page := domain.Page{
		Number: intQueryParam(c, "page", 1),
		Size:   intQueryParam(c, "size", 10),
	}
	filter := domain.ListFilter{
		Name: c.QueryParam("title"),
		UID:  c.QueryParam("uid"),
	}
	requesterID := c.Request().Header.Get(requesterHeader)

	result, err := s.streams.ListLive(c.Request().Context(), filter, page, requesterID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list streams")
	}

	resp := listStreamsResponse{
		Streams:    make([]streamResponse, 0, len(result.Streams)),
		Total:      result.Total,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	}
	for _, stream := range result.Streams {
		resp.Streams = append(resp.Streams, toStreamResponse(stream))
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStreamStats(c echo.Context) error {
	stats, err := s.streams.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute stats")
	}

	monthly := make([]echo.Map, 0, len(stats.Monthly))
	for _, m := range stats.Monthly {
		monthly = append(monthly, echo.Map{"year": m.Year, "month": m.Month, "count": m.Count})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total":     stats.Total,
		"today":     stats.Today,
		"thisWeek":  stats.ThisWeek,
		"thisMonth": stats.ThisMonth,
		"monthly":   monthly,
	})
}

func (s *Server) handleLikeStream(c echo.Context) error {
	return s.toggleLike(c, true)
}

func (s *Server) handleUnlikeStream(c echo.Context) error {
	return s.toggleLike(c, false)
}

func (s *Server) toggleLike(c echo.Context, like bool) error {
	userID := c.Request().Header.Get(requesterHeader)
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing X-User-ID header")
	}

	var err error
	if like {
		err = s.streams.Like(c.Request().Context(), c.Param("id"), userID)
	} else {
		err = s.streams.Unlike(c.Request().Context(), c.Param("id"), userID)
	}
	if err != nil {
		return streamError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

type editCategoriesRequest struct {
	Added   []string `json:"addedCategoryIds"`
	Removed []string `json:"removedCategoryIds"`
}

func (s *Server) handleEditCategories(c echo.Context) error {
	var req editCategoriesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Added) == 0 && len(req.Removed) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to edit")
	}

	if err := s.streams.EditCategories(c.Request().Context(), c.Param("id"), req.Added, req.Removed); err != nil {
		return streamError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteStream(c echo.Context) error {
	if err := s.streams.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return streamError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func streamError(err error) error {
	switch {
	case errors.Is(err, domain.ErrStreamNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "stream not found")
	case errors.Is(err, domain.ErrStreamDeleted):
		return echo.NewHTTPError(http.StatusGone, "stream is deleted")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func intQueryParam(c echo.Context, name string, defaultValue int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}
