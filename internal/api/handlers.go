package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paper-trading-bot/internal/auth"
	"paper-trading-bot/internal/bot"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  string(s.engine.State()),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.authService.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}
	if !s.loginLimit.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, expiresIn, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status(c.Request.Context()))
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.engine.Start(c.Request.Context()); err != nil {
		if err == bot.ErrAlreadyRunning {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.engine.State())})
}

type stopRequest struct {
	ClosePosition bool `json:"close_position"`
}

func (s *Server) handleStop(c *gin.Context) {
	var req stopRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.engine.Stop(c.Request.Context(), req.ClosePosition); err != nil {
		if err == bot.ErrNotRunning {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.engine.State())})
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req closeRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.engine.ClosePosition(req.Reason); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.engine.State())})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	entries, err := s.trades.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": entries, "count": len(entries)})
}

func (s *Server) handleSignals(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	signals := s.engine.SignalHistory(limit)
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
