package gateway

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/procurehub/procurement-orchestrator/internal/auth"
	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/pipeline"
)

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	orchestrator *pipeline.Orchestrator
	jwtManager   *auth.JWTManager
	users        UserDirectory
}

// NewHandler creates a new gateway handler
func NewHandler(orchestrator *pipeline.Orchestrator, jwtManager *auth.JWTManager, users UserDirectory) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		jwtManager:   jwtManager,
		users:        users,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token carrying the procurement role
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		log.Printf(`{"level":"warn","message":"User not found","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Printf(`{"level":"warn","message":"Invalid password","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	token, err := h.jwtManager.GenerateToken(
		c.Request.Context(),
		user.ID,
		user.Email,
		[]string{user.Role},
		24*time.Hour,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		UserID: user.ID,
		Role:   user.Role,
	})
}

// RefreshToken godoc
// @Summary Refresh JWT token
// @Description Exchange a valid token for a fresh one with a new expiry
// @Tags auth
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Missing authorization header", Code: models.ErrCodeUnauthorized})
		return
	}

	token, err := h.jwtManager.RefreshToken(c.Request.Context(), authHeader[len(prefix):], 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token", Code: models.ErrCodeUnauthorized})
		return
	}

	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, UserID: claims.UserID})
}

// CreateRequestBody represents a procurement request submission
type CreateRequestBody struct {
	Text string `json:"text" binding:"required"`
}

// RequestResponse summarizes pipeline state for API clients
type RequestResponse struct {
	RequestID       string                  `json:"request_id"`
	Stage           models.Stage            `json:"stage"`
	Version         int                     `json:"version"`
	PendingQuestion string                  `json:"pending_question,omitempty"`
	Shortlist       []models.ShortlistEntry `json:"shortlist,omitempty"`
	VerdictStatus   string                  `json:"verdict_status,omitempty"`
	FailureReason   string                  `json:"failure_reason,omitempty"`
	POID            string                  `json:"po_id,omitempty"`
}

func stateResponse(state *models.PipelineState) RequestResponse {
	resp := RequestResponse{
		RequestID:       state.RequestID,
		Stage:           state.Stage,
		Version:         state.Version,
		PendingQuestion: state.PendingQuestion,
		FailureReason:   state.FailureReason,
		POID:            state.POID,
	}
	if state.Stage == models.StageAwaitingSelection {
		resp.Shortlist = shortlistEntries(state)
	}
	if state.Verdict != nil {
		resp.VerdictStatus = string(state.Verdict.Status)
	}
	return resp
}

func shortlistEntries(state *models.PipelineState) []models.ShortlistEntry {
	entries := make([]models.ShortlistEntry, 0, len(state.Shortlist))
	for _, r := range state.Shortlist {
		entries = append(entries, models.ShortlistEntry{
			Rank:          r.Rank,
			ItemSummary:   r.Item.Title,
			Price:         r.Item.Price,
			Currency:      r.Item.Currency,
			Vendor:        r.Item.Vendor,
			Justification: r.Justification,
		})
	}
	return entries
}

// CreateRequest godoc
// @Summary Submit procurement request
// @Description Start a procurement pipeline from free-text and drive it to its first checkpoint
// @Tags requests
// @Accept json
// @Produce json
// @Param request body CreateRequestBody true "Free-text procurement request"
// @Success 201 {object} RequestResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unknown account", Code: models.ErrCodeUnauthorized})
		return
	}

	state, err := h.orchestrator.StartRequest(c.Request.Context(), user.Requester(), req.Text)
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to start pipeline","user_id":"%s","error":"%v"}`, user.ID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to start request", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusCreated, stateResponse(state))
}

// GetRequest godoc
// @Summary Get pipeline state
// @Description Current stage, pending question, shortlist and outcome of a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} RequestResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id} [get]
func (h *Handler) GetRequest(c *gin.Context) {
	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stateResponse(state))
}

// MessageBody represents a clarification answer
type MessageBody struct {
	Answer string `json:"answer" binding:"required"`
}

// SubmitMessage godoc
// @Summary Answer clarification question
// @Description Answer the pending clarifying question and resume the pipeline
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body MessageBody true "Clarification answer"
// @Success 200 {object} RequestResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/messages [post]
func (h *Handler) SubmitMessage(c *gin.Context) {
	var req MessageBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}

	next, err := h.orchestrator.SubmitMessage(c.Request.Context(), state.RequestID, req.Answer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(next))
}

// GetShortlist godoc
// @Summary Get ranked shortlist
// @Description Ranked shortlist for a request awaiting selection
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} []models.ShortlistEntry
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/shortlist [get]
func (h *Handler) GetShortlist(c *gin.Context) {
	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}
	if len(state.Shortlist) == 0 {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "No shortlist available at this stage", Code: models.ErrCodeInvalidStage})
		return
	}
	c.JSON(http.StatusOK, shortlistEntries(state))
}

// SelectionBody represents a shortlist selection
type SelectionBody struct {
	Rank     int `json:"rank" binding:"required"`
	Quantity int `json:"quantity"`
}

// SubmitSelection godoc
// @Summary Select a shortlist item
// @Description Pick a ranked item and resume the pipeline through compliance checking
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body SelectionBody true "Selected rank and quantity"
// @Success 200 {object} RequestResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/selection [post]
func (h *Handler) SubmitSelection(c *gin.Context) {
	var req SelectionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}

	next, err := h.orchestrator.SubmitSelection(c.Request.Context(), state.RequestID, req.Rank, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(next))
}

// ApprovalBody represents a manager decision
type ApprovalBody struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// SubmitApproval godoc
// @Summary Decide an escalated request
// @Description Manager approval or rejection of a request awaiting manager approval
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body ApprovalBody true "Manager decision"
// @Success 200 {object} RequestResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/approval [post]
func (h *Handler) SubmitApproval(c *gin.Context) {
	var req ApprovalBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}

	requestID := c.Param("id")
	next, err := h.orchestrator.SubmitManagerDecision(c.Request.Context(), requestID, claims.UserID, req.Approved, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(next))
}

// CancelRequest godoc
// @Summary Cancel a request
// @Description Terminate a non-terminal request; in-flight stage results are discarded
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} RequestResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/cancel [post]
func (h *Handler) CancelRequest(c *gin.Context) {
	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}

	next, err := h.orchestrator.Cancel(c.Request.Context(), state.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(next))
}

// GetPurchaseOrder godoc
// @Summary Get the purchase order
// @Description Generated purchase order for a completed request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.PurchaseOrder
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id}/po [get]
func (h *Handler) GetPurchaseOrder(c *gin.Context) {
	state, ok := h.loadAccessibleState(c)
	if !ok {
		return
	}

	order, err := h.orchestrator.GetPurchaseOrder(c.Request.Context(), state.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// requireClaims pulls validated JWT claims off the gin context.
func (h *Handler) requireClaims(c *gin.Context) (*auth.Claims, bool) {
	claimsVal, exists := c.Get("claims")
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "User not authenticated", Code: models.ErrCodeUnauthorized})
		return nil, false
	}
	claims, ok := claimsVal.(*auth.Claims)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "User not authenticated", Code: models.ErrCodeUnauthorized})
		return nil, false
	}
	return claims, true
}

// loadAccessibleState loads the request's pipeline state and enforces
// that the caller owns it or holds a manager-level role.
func (h *Handler) loadAccessibleState(c *gin.Context) (*models.PipelineState, bool) {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil, false
	}

	requestID := c.Param("id")
	state, err := h.orchestrator.Get(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !canAccessRequest(claims, state) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Forbidden", Code: models.ErrCodeForbidden})
		return nil, false
	}
	return state, true
}

// respondError maps pipeline errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var selErr *models.InvalidSelectionError
	var qtyErr *models.InvalidQuantityError
	var transErr *models.InvalidTransitionError

	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Request not found", Code: models.ErrCodeNotFound})
	case errors.Is(err, pipeline.ErrPONotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "No purchase order for this request", Code: models.ErrCodeNotFound})
	case errors.As(err, &selErr):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: selErr.Error(), Code: models.ErrCodeInvalidSelection})
	case errors.As(err, &qtyErr):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: qtyErr.Error(), Code: models.ErrCodeValidationFailed})
	case errors.As(err, &transErr):
		code := models.ErrCodeInvalidStage
		if transErr.From.IsTerminal() {
			code = models.ErrCodeRequestTerminated
		}
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: transErr.Error(), Code: code})
	default:
		log.Printf(`{"level":"error","message":"Unhandled pipeline error","error":"%v"}`, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal error", Code: models.ErrCodeInternalError})
	}
}
