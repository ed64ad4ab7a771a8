package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/response"
)

// ResponseHandler exposes submission and moderation endpoints.
type ResponseHandler struct {
	responses *service.ResponseService
}

// NewResponseHandler constructs handler.
func NewResponseHandler(responses *service.ResponseService) *ResponseHandler {
	return &ResponseHandler{responses: responses}
}

// Submit godoc
// @Summary Submit a survey response
// @Description Anonymous callers submit without a token; invite-gated surveys pass the invite via the invite query parameter.
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param invite query string false "Invite token"
// @Param payload body dto.SubmitRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Router /surveys/{id}/responses [post]
func (h *ResponseHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	identity := identityFromContext(c)
	result, err := h.responses.Submit(c.Request.Context(), c.Param("id"), identity, c.Query("invite"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetOwn godoc
// @Summary Fetch the caller's own response to a survey
// @Tags Responses
// @Produce json
// @Param id path string true "Survey ID"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/responses/me [get]
func (h *ResponseHandler) GetOwn(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resp, err := h.responses.GetOwn(c.Request.Context(), c.Param("id"), *identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Moderate godoc
// @Summary Flag or redact an answer
// @Tags Responses
// @Accept json
// @Produce json
// @Param answerId path string true "Answer ID"
// @Param payload body dto.ModerationRequest true "Moderation decision"
// @Success 200 {object} response.Envelope
// @Router /answers/{answerId}/moderation [put]
func (h *ResponseHandler) Moderate(c *gin.Context) {
	var req dto.ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid moderation payload"))
		return
	}
	answer, err := h.responses.ModerateAnswer(c.Request.Context(), c.Param("answerId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, answer, nil)
}
