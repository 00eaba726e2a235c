package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/edupoints/internal/analytics/domain"
)

type pageQuery struct {
	Since  string `form:"since"`
	Limit  string `form:"limit"`
	Offset string `form:"offset"`
}

type page struct {
	since  *time.Time
	limit  int
	offset int
}

type rangeQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// bindPage aborts the request and returns false on malformed paging params.
func bindPage(c *gin.Context) (page, bool) {
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return page{}, false
	}

	since, err := parseOptionalTime(query.Since, false)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
		return page{}, false
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return page{}, false
	}
	offset, err := parseOptionalInt(query.Offset)
	if err != nil {
		AbortWithError(c, newValidationError("offset", "invalid_offset", "invalid offset"))
		return page{}, false
	}
	return page{since: since, limit: limit, offset: offset}, true
}

func bindRange(c *gin.Context) (analyticsdomain.TimeRange, bool) {
	var query rangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return analyticsdomain.TimeRange{}, false
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return analyticsdomain.TimeRange{}, false
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return analyticsdomain.TimeRange{}, false
	}
	return analyticsdomain.TimeRange{From: from, To: to}, true
}

func (s *Server) GetPointsSummary(c *gin.Context) {
	r, ok := bindRange(c)
	if !ok {
		return
	}

	resp, err := s.analyticsSvc.PointsSummary(c.Request.Context(), r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFraudSummary(c *gin.Context) {
	r, ok := bindRange(c)
	if !ok {
		return
	}

	resp, err := s.analyticsSvc.FraudSummary(c.Request.Context(), r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReviewQueue(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	items, err := s.analyticsSvc.ReviewQueue(c.Request.Context(), analyticsdomain.ReviewQueueRequest{
		Since:  p.since,
		Limit:  p.limit,
		Offset: p.offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListUserFraudHistory(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	items, err := s.analyticsSvc.UserFraudHistory(c.Request.Context(), analyticsdomain.FraudHistoryRequest{
		UserID: c.Param("user_id"),
		Since:  p.since,
		Limit:  p.limit,
		Offset: p.offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
