package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
)

type createOrderRequest struct {
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

func (s *Server) HandleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.CreateOrder(c.Request.Context(), orderdomain.CreateOrderRequest{
		Amount: req.Amount,
		Note:   req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) HandleListOrders(c *gin.Context) {
	orders, err := s.orderSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if orders == nil {
		orders = []orderdomain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) HandleCheckStatus(c *gin.Context) {
	order, err := s.orderSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":     order.ID,
		"status":       order.Status,
		"confirmed_by": order.ConfirmedBy,
	})
}

type markPaidRequest struct {
	UTR string `json:"utr"`
}

func (s *Server) HandleMarkPaid(c *gin.Context) {
	var req markPaidRequest
	// Body is optional: marking paid without a reference is allowed.
	_ = c.ShouldBindJSON(&req)

	order, err := s.orderSvc.MarkPaid(c.Request.Context(), c.Param("id"), req.UTR)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.Status == orderdomain.StatusVerifying {
		s.verifier.OnMarkPaid(c.Request.Context(), order.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID,
		"status":   order.Status,
	})
}

type overrideRequest struct {
	Status string `json:"status"`
}

func (s *Server) HandleAdminOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.AdminOverride(c.Request.Context(), c.Param("id"), orderdomain.Status(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.verifier.CancelFallback(order.ID)
	c.JSON(http.StatusOK, order)
}

func (s *Server) HandleDeleteOrder(c *gin.Context) {
	id := c.Param("id")
	if err := s.orderSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	s.verifier.CancelFallback(id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) HandleDeleteAllOrders(c *gin.Context) {
	if err := s.orderSvc.DeleteAll(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	s.verifier.StopTimers()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
