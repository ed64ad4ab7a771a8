package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/response"
)

// InviteHandler exposes invite issuance and probing endpoints.
type InviteHandler struct {
	invites *service.InviteService
}

// NewInviteHandler constructs handler.
func NewInviteHandler(invites *service.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

// Issue godoc
// @Summary Issue invite tokens for a survey
// @Tags Invites
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.InviteRequest true "Emails or token count"
// @Success 201 {object} response.Envelope
// @Router /surveys/{id}/invites [post]
func (h *InviteHandler) Issue(c *gin.Context) {
	var req dto.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid invite payload"))
		return
	}
	invites, err := h.invites.Issue(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invites)
}

// List godoc
// @Summary List a survey's invites
// @Tags Invites
// @Produce json
// @Param id path string true "Survey ID"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/invites [get]
func (h *InviteHandler) List(c *gin.Context) {
	invites, err := h.invites.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invites, nil)
}

// Probe godoc
// @Summary Check whether an invite token is still redeemable
// @Tags Invites
// @Produce json
// @Param token path string true "Invite token"
// @Success 200 {object} response.Envelope
// @Router /invites/{token} [get]
func (h *InviteHandler) Probe(c *gin.Context) {
	probe, err := h.invites.Probe(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, probe, nil)
}

// Mine godoc
// @Summary List the caller's open invites
// @Tags Invites
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /invites/mine [get]
func (h *InviteHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Email == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	invites, err := h.invites.OpenForEmail(c.Request.Context(), claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invites, nil)
}
