package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"distributor.app/internal/audit"
	"distributor.app/internal/auth"
	"distributor.app/internal/microinvest"
)

type createMappingRequest struct {
	AccountID  int64 `json:"account_id"`
	ExternalID int64 `json:"external_id"`
}

type productsResponse struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Count    int                   `json:"count"`
	Products []microinvest.Product `json:"products"`
}

type operationsResponse struct {
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
	Count      int                     `json:"count"`
	Operations []microinvest.Operation `json:"operations"`
}

type partnersResponse struct {
	Page     int                   `json:"page"`
	Limit    int                   `json:"limit"`
	Count    int                   `json:"count"`
	Partners []microinvest.Partner `json:"partners"`
}

func (a *API) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	// Forbidden is reported before anything about the body.
	if !auth.IsAdminOrStaff(principal(r)) {
		a.writeAuthError(w, r, fmt.Errorf("%w: only admin or staff can map users", auth.ErrForbidden))
		return
	}
	var req createMappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if req.AccountID <= 0 || req.ExternalID <= 0 {
		a.writeAuthError(w, r, fmt.Errorf("%w: account_id and external_id must be positive", auth.ErrInvalidInput))
		return
	}
	m, err := a.mapper.CreateMapping(r.Context(), req.AccountID, req.ExternalID, principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventMappingCreated, logrus.Fields{
		"mapping_id":  m.ID,
		"account_id":  m.AccountID,
		"external_id": m.ExternalID,
		"user_level":  m.UserLevel,
	})
	w.Header().Set("Location", fmt.Sprintf("/microinvest/users/%d", m.ID))
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleListMappings(w http.ResponseWriter, r *http.Request) {
	list, err := a.mapper.ListMappings(r.Context(), principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if list == nil {
		list = []*auth.IdentityMapping{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "mapping_id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	m, err := a.mapper.GetMapping(r.Context(), id, principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "mapping_id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if err := a.mapper.DeleteMapping(r.Context(), id, principal(r)); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventMappingDeleted, logrus.Fields{"mapping_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Mapping deleted successfully"})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !a.catalogAvailable(w, r) {
		return
	}
	viewer, ok := a.mappedPrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := microinvest.ProductFilter{
		Name:    strings.TrimSpace(q.Get("name")),
		Code:    strings.TrimSpace(q.Get("code")),
		BarCode: strings.TrimSpace(q.Get("bar_code")),
	}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size", 20); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if f, err = f.Normalize(); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	products, err := a.catalog.ListProducts(r.Context(), f)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	products = microinvest.MaskProducts(products, viewer)
	if products == nil {
		products = []microinvest.Product{}
	}
	writeJSON(w, http.StatusOK, productsResponse{
		Page:     f.Page,
		PageSize: f.PageSize,
		Count:    len(products),
		Products: products,
	})
}

func (a *API) handleOperations(w http.ResponseWriter, r *http.Request) {
	if !a.catalogAvailable(w, r) {
		return
	}
	viewer, ok := a.mappedPrincipal(w, r)
	if !ok {
		return
	}
	f, err := operationFilterFrom(r)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	f, err = f.Scope(viewer).Validate()
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	ops, err := a.catalog.ListOperations(r.Context(), f)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	ops = microinvest.MaskOperations(ops, viewer)
	if ops == nil {
		ops = []microinvest.Operation{}
	}
	writeJSON(w, http.StatusOK, operationsResponse{
		Limit:      f.Limit,
		Offset:     f.Offset,
		Count:      len(ops),
		Operations: ops,
	})
}

func (a *API) handleOperation(w http.ResponseWriter, r *http.Request) {
	if !a.catalogAvailable(w, r) {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	viewer, ok := a.mappedPrincipal(w, r)
	if !ok {
		return
	}
	op, err := a.catalog.GetOperation(r.Context(), id, viewer)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, microinvest.MaskOperations([]microinvest.Operation{op}, viewer)[0])
}

func (a *API) handlePartners(w http.ResponseWriter, r *http.Request) {
	if !a.catalogAvailable(w, r) {
		return
	}
	if _, ok := a.mappedPrincipal(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := microinvest.PartnerFilter{
		Company: strings.TrimSpace(q.Get("company")),
		MOL:     strings.TrimSpace(q.Get("mol")),
		Phone:   strings.TrimSpace(q.Get("phone")),
		TaxNo:   strings.TrimSpace(q.Get("taxno")),
	}
	var err error
	if f.ID, err = queryInt64Ptr(r, "id"); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 20); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if f, err = f.Normalize(); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	partners, err := a.catalog.ListPartners(r.Context(), f)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	if partners == nil {
		partners = []microinvest.Partner{}
	}
	writeJSON(w, http.StatusOK, partnersResponse{
		Page:     f.Page,
		Limit:    f.Limit,
		Count:    len(partners),
		Partners: partners,
	})
}

// handleDashboard summarises sales. Non-elevated users only see their own
// sales and never cost prices.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !a.catalogAvailable(w, r) {
		return
	}
	viewer, ok := a.mappedPrincipal(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := microinvest.DashboardQuery{
		Period:    strings.TrimSpace(params.Get("period")),
		StartDate: strings.TrimSpace(params.Get("start_date")),
		EndDate:   strings.TrimSpace(params.Get("end_date")),
	}.Scope(viewer)
	d, err := a.catalog.Dashboard(r.Context(), q)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	d.RecentOperations = microinvest.MaskOperations(d.RecentOperations, viewer)
	if d.RecentOperations == nil {
		d.RecentOperations = []microinvest.Operation{}
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) catalogAvailable(w http.ResponseWriter, r *http.Request) bool {
	if a.catalog != nil {
		return true
	}
	writeError(w, r, http.StatusServiceUnavailable, auth.KindInternal, "microinvest is not configured")
	return false
}

func operationFilterFrom(r *http.Request) (microinvest.OperationFilter, error) {
	q := r.URL.Query()
	f := microinvest.OperationFilter{
		PartnerName: strings.TrimSpace(q.Get("partner_name")),
		GoodName:    strings.TrimSpace(q.Get("good_name")),
		OperName:    strings.TrimSpace(q.Get("oper_name")),
		StartDate:   strings.TrimSpace(q.Get("start_date")),
		EndDate:     strings.TrimSpace(q.Get("end_date")),
	}
	var err error
	if f.UserID, err = queryInt64Ptr(r, "user_id"); err != nil {
		return f, err
	}
	if f.PartnerID, err = queryInt64Ptr(r, "partner_id"); err != nil {
		return f, err
	}
	if f.GoodID, err = queryInt64Ptr(r, "good_id"); err != nil {
		return f, err
	}
	operType, err := queryInt64Ptr(r, "oper_type")
	if err != nil {
		return f, err
	}
	if operType != nil {
		v := int(*operType)
		f.OperType = &v
	}
	if f.Limit, err = queryInt(r, "limit", 50); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}
