package gateway

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procurehub/procurement-orchestrator/internal/auth"
	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/pipeline"
)

// PipelineStream handles WebSocket connections streaming pipeline
// checkpoint events for one request.
type PipelineStream struct {
	orchestrator *pipeline.Orchestrator
	hub          *EventHub
	jwtManager   *auth.JWTManager
	tracer       trace.Tracer
	upgrader     websocket.Upgrader
}

func NewPipelineStream(orchestrator *pipeline.Orchestrator, hub *EventHub, jwtManager *auth.JWTManager) *PipelineStream {
	return &PipelineStream{
		orchestrator: orchestrator,
		hub:          hub,
		jwtManager:   jwtManager,
		tracer:       otel.Tracer("pipeline-stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the frontend host is fixed
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// StreamRequest handles WebSocket /api/ws/requests/:id
// @Summary Stream pipeline checkpoint events
// @Description WebSocket endpoint streaming clarification, shortlist, approval and terminal events for a request
// @Tags requests
// @Param id path string true "Request ID"
// @Param token query string false "JWT token (alternative to Authorization header)"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/requests/{id} [get]
func (s *PipelineStream) StreamRequest(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "pipeline_stream.stream_request")
	defer span.End()

	requestID := c.Param("id")
	span.SetAttributes(attribute.String("request.id", requestID))

	claims, err := s.validateJWT(c)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized", Code: models.ErrCodeUnauthorized})
		return
	}
	span.SetAttributes(attribute.String("user.id", claims.UserID))

	state, err := s.orchestrator.Get(ctx, requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Request not found", Code: models.ErrCodeNotFound})
		return
	}
	if !canAccessRequest(claims, state) {
		span.SetAttributes(attribute.Bool("access_denied", true))
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Forbidden", Code: models.ErrCodeForbidden})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"error","message":"WebSocket upgrade failed","request_id":"%s","error":"%v"}`, requestID, err)
		return
	}
	defer conn.Close()

	// Snapshot first so the client renders current stage before any
	// incremental event arrives.
	if err := conn.WriteJSON(gin.H{
		"event_type": "pipeline.snapshot",
		"request_id": requestID,
		"stage":      state.Stage,
		"version":    state.Version,
	}); err != nil {
		return
	}

	events, cancel := s.hub.Subscribe(requestID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				log.Printf(`{"level":"warn","message":"WebSocket write failed","request_id":"%s","error":"%v"}`, requestID, err)
				return
			}
			if event.Stage.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Stage)))
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// validateJWT accepts the token from the query string (WebSocket clients
// cannot always set headers) or the Authorization header.
func (s *PipelineStream) validateJWT(c *gin.Context) (*auth.Claims, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}
	if token == "" {
		return nil, fmt.Errorf("missing JWT token")
	}
	return s.jwtManager.ValidateToken(c.Request.Context(), token)
}

// canAccessRequest allows the requester who owns the pipeline and any
// manager.
func canAccessRequest(claims *auth.Claims, state *models.PipelineState) bool {
	if state.Request != nil && state.Request.Requester.ID == claims.UserID {
		return true
	}
	for _, role := range claims.Roles {
		if role == "manager" || role == "director" {
			return true
		}
	}
	return false
}
