package obs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	var got string
	r := mux.NewRouter()
	r.HandleFunc("/microinvest/users/{mapping_id}", func(w http.ResponseWriter, req *http.Request) {
		got = CanonicalPath(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/microinvest/users/42", nil))
	if got != "/microinvest/users/{mapping_id}" {
		t.Fatalf("CanonicalPath=%q", got)
	}

	if p := CanonicalPath(httptest.NewRequest(http.MethodGet, "/x", nil)); p != "unmatched" {
		t.Fatalf("expected unmatched, got %q", p)
	}
}

func TestInstrumentCountsByTemplate(t *testing.T) {
	Init()
	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/users/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/2", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/users/{id}", "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests counted, got %v", after-before)
	}
}

func TestObserveSweep(t *testing.T) {
	okBefore := testutil.ToFloat64(sweepsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(sweepsTotal.WithLabelValues("error"))
	purgedBefore := testutil.ToFloat64(revokedPurgedTotal)

	ObserveSweep(5, nil)
	ObserveSweep(0, errors.New("db down"))

	if d := testutil.ToFloat64(sweepsTotal.WithLabelValues("ok")) - okBefore; d != 1 {
		t.Fatalf("ok sweeps delta %v", d)
	}
	if d := testutil.ToFloat64(sweepsTotal.WithLabelValues("error")) - errBefore; d != 1 {
		t.Fatalf("error sweeps delta %v", d)
	}
	if d := testutil.ToFloat64(revokedPurgedTotal) - purgedBefore; d != 5 {
		t.Fatalf("purged delta %v", d)
	}
}
