package http

import (
	"net/http"

	"quizhub-service/internal/domain"
)

type createCompanyRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid company payload")
		return
	}
	company, err := h.memberships.CreateCompany(r.Context(), userID(r), req.Name, req.Description)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	members, err := h.memberships.ListMembers(r.Context(), companyID, userID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Role   string `json:"role" validate:"required"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	var req addMemberRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid member payload")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	target := mustUUID(req.UserID)
	membership, err := h.memberships.AddMember(r.Context(), companyID, userID(r), target, role)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	target, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}
	var req updateRoleRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid role payload")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.memberships.UpdateRole(r.Context(), companyID, userID(r), target, role); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	target, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}
	if err := h.memberships.RemoveMember(r.Context(), companyID, userID(r), target); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
