package httpapi

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"distributor.app/internal/audit"
	"distributor.app/internal/auth"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Password    string `json:"password"`
	IsActive    *bool  `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
	Role        string `json:"role"`
}

type updateUserRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	Role        *string `json:"role"`
}

type createRoleRequest struct {
	Name string `json:"name"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	view, err := a.accounts.Register(r.Context(), principal(r), auth.NewAccount{
		Username:    req.Username,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
		Role:        req.Role,
	})
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserCreated, logrus.Fields{
		"account_id": view.ID,
		"role":       view.Role,
		"superuser":  view.IsSuperuser,
	})
	w.Header().Set("Location", fmt.Sprintf("/users/%d", view.ID))
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	views, err := a.accounts.List(r.Context(), principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	view, err := a.accounts.Get(r.Context(), principal(r), id)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	view, err := a.accounts.Update(r.Context(), principal(r), id, auth.AccountUpdate(req))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserUpdated, logrus.Fields{
		"account_id":       id,
		"password_changed": req.Password != nil,
	})
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if err := a.accounts.Delete(r.Context(), principal(r), id); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserDeleted, logrus.Fields{"account_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	role, err := a.accounts.CreateRole(r.Context(), principal(r), req.Name)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRoleCreated, logrus.Fields{"role": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.accounts.ListRoles(r.Context(), principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}
