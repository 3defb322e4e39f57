package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/api/dto"
	"github.com/olyamironova/auction-engine/internal/api/ws"
	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/middleware"
)

type HTTPServer struct {
	Eng      *core.Engine
	Hub      *ws.Hub
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
	// BidInterval throttles state-changing requests per user; zero disables it.
	BidInterval time.Duration
}

func NewHTTPServer(eng *core.Engine, hub *ws.Hub, gatherer prometheus.Gatherer, log *zap.Logger) *HTTPServer {
	return &HTTPServer{
		Eng:         eng,
		Hub:         hub,
		Gatherer:    gatherer,
		Log:         log,
		BidInterval: 100 * time.Millisecond,
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_auctions": len(s.Eng.ActiveAuctions())})
	})
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	if s.Hub != nil {
		r.GET("/ws/livestreams/:livestreamID", func(c *gin.Context) {
			s.Hub.Serve(c.Writer, c.Request, c.Param("livestreamID"))
		})
	}

	r.GET("/auctions", s.listAuctions)
	r.GET("/auctions/:auctionID", s.getAuction)

	authed := r.Group("/", middleware.RequireUser())
	if s.BidInterval > 0 {
		rl := middleware.NewRateLimiter(s.BidInterval)
		authed.Use(rl.Middleware())
	}
	authed.POST("/livestreams/:livestreamID/items/:itemID/start", s.startItem)
	authed.POST("/auctions/:auctionID/bids", s.placeBid)
	authed.POST("/auctions/:auctionID/max-bid", s.setMaxBid)
	authed.POST("/auctions/:auctionID/stop", s.stopAuction)
	return r
}

func (s *HTTPServer) startItem(c *gin.Context) {
	state, err := s.Eng.StartItem(c.Request.Context(), middleware.UserID(c), c.Param("livestreamID"), c.Param("itemID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromState(state))
}

func (s *HTTPServer) placeBid(c *gin.Context) {
	var req dto.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	state, err := s.Eng.PlaceBid(c.Request.Context(), c.Param("auctionID"), middleware.UserID(c), req.BidderName, req.Amount, req.LivestreamID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromState(state))
}

func (s *HTTPServer) setMaxBid(c *gin.Context) {
	var req dto.SetMaxBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	state, err := s.Eng.SetMaxBid(c.Request.Context(), c.Param("auctionID"), middleware.UserID(c), req.BidderName, req.MaxAmount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromState(state))
}

func (s *HTTPServer) stopAuction(c *gin.Context) {
	state, err := s.Eng.StopAuctionAs(c.Request.Context(), middleware.UserID(c), c.Param("auctionID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromState(state))
}

func (s *HTTPServer) getAuction(c *gin.Context) {
	state, err := s.Eng.GetState(c.Param("auctionID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromState(state))
}

func (s *HTTPServer) listAuctions(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ActiveAuctionsResponse{AuctionIDs: s.Eng.ActiveAuctions()})
}

// fail maps engine errors to responses. Rejections carry their reason;
// anything else gets a generic message and is logged.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	if r, ok := core.IsRejection(err); ok {
		c.JSON(statusFor(r), dto.ErrorResponse{Error: r.Reason, Code: r.Code})
		return
	}
	s.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	code := "internal"
	if errors.Is(err, core.ErrPersistence) {
		code = "persistence"
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error, please retry", Code: code})
}

func statusFor(r *core.Rejection) int {
	switch {
	case errors.Is(r, core.ErrAuctionNotFound), errors.Is(r, core.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(r, core.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(r, core.ErrAlreadyRunning), errors.Is(r, core.ErrItemNotQueued),
		errors.Is(r, core.ErrAuctionNotRunning), errors.Is(r, core.ErrBiddingClosed):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
