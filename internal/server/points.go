package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pointsdomain "github.com/smallbiznis/edupoints/internal/points/domain"
)

func (s *Server) GetUserBalance(c *gin.Context) {
	account, err := s.pointsSvc.GetBalance(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) ListUserTransactions(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	items, err := s.pointsSvc.ListTransactions(c.Request.Context(), pointsdomain.ListTransactionsRequest{
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

func (s *Server) ReconcileUser(c *gin.Context) {
	report, err := s.pointsSvc.Reconcile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
