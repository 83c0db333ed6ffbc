// Package api implements HTTP handlers and helpers for the optimizer service.
package api

import (
	"net/http"
)

type Principal struct {
	Tenant string
	Role   string // admin, dispatcher
}

// getPrincipal extracts tenant and role from the request headers. Requests
// without a role act as admin.
func (s *Server) getPrincipal(r *http.Request) Principal {
	_, tenant := s.withTenant(r)
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// requireAdmin writes 403 and returns false unless the caller is an admin.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
