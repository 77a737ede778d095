// Package api exposes the HTTP surface of the bot: the attribution
// link generator used by marketing pages and a health endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vedaverse/followerbot/internal/deeplink"
)

// Server holds the HTTP API configuration.
type Server struct {
	botName string
}

// NewServer creates a Server that generates links pointing at the given bot.
func NewServer(botName string) *Server {
	return &Server{botName: botName}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/generate_link", s.handleGenerateLink)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGenerateLink builds a bot deep link carrying the caller's campaign
// attribution. utm_source and utm_medium are required; utm_campaign is
// optional and appended only when present.
func (s *Server) handleGenerateLink(c *gin.Context) {
	source := c.Query("utm_source")
	medium := c.Query("utm_medium")
	if source == "" || medium == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "utm_source and utm_medium are required"})
		return
	}

	pairs := [][2]string{
		{"utm_source", source},
		{"utm_medium", medium},
	}
	if campaign := c.Query("utm_campaign"); campaign != "" {
		pairs = append(pairs, [2]string{"utm_campaign", campaign})
	}

	link := deeplink.Link(s.botName, pairs)
	slog.Debug("api generated attribution link", "utm_source", source, "utm_medium", medium)
	c.JSON(http.StatusOK, gin.H{"generated_link": link})
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
	})
}
