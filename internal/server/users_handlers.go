package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"memovault/internal/apperr"
	"memovault/internal/auth"
	"memovault/internal/users"
)

type accountPayload struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toAccountPayload(account *users.Account) accountPayload {
	return accountPayload{
		ID:          account.ID,
		Email:       account.Email,
		Name:        account.Name,
		Role:        account.Role,
		IsActive:    account.IsActive,
		LastLoginAt: account.LastLoginAt,
		CreatedAt:   account.CreatedAt,
		UpdatedAt:   account.UpdatedAt,
	}
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	accounts, err := h.users.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	payloads := make([]accountPayload, 0, len(accounts))
	for i := range accounts {
		payloads = append(payloads, toAccountPayload(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  payloads,
		"count": len(payloads),
	})
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("email, password, and name are required"))
		return
	}
	account, err := h.users.Create(c.Request.Context(), request.Email, request.Password, request.Name, request.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountPayload(account))
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	account, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountPayload(account))
}

type updateUserRequest struct {
	Email  *string `json:"email"`
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Active *bool   `json:"is_active"`
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		return
	}

	var request updateUserRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("malformed update payload"))
		return
	}

	account, err := h.users.Update(c.Request.Context(), principal.ID, c.Param("id"), users.UpdateRequest{
		Email:  request.Email,
		Name:   request.Name,
		Role:   request.Role,
		Active: request.Active,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountPayload(account))
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (h *httpHandler) handleResetPassword(c *gin.Context) {
	var request resetPasswordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("new password is required"))
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), c.Param("id"), request.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		return
	}
	if err := h.users.Delete(c.Request.Context(), principal.ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}
