package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the roles recognised by RBAC. Identity itself is
// issued by an external provider; this service only reads the claims it
// is handed.
type UserRole string

const (
	// RoleAdmin manages lifecycle, invites and moderation.
	RoleAdmin UserRole = "ADMIN"
	// RoleCreator authors surveys.
	RoleCreator UserRole = "CREATOR"
	// RoleAnalyst computes and reads reports.
	RoleAnalyst UserRole = "ANALYST"
	// RoleMember is a plain respondent.
	RoleMember UserRole = "MEMBER"
)

// JWTClaims is the token payload issued by the external identity provider.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Pagination describes list slicing metadata returned in envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes derived page counts.
func NewPagination(page, pageSize, total int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}
