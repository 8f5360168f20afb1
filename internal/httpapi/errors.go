package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distributor.app/internal/auth"
)

const revokedMessage = "Token has been blacklisted. Please log in again."

var sentinels = map[string]error{
	auth.KindInvalidCredentials: auth.ErrInvalidCredentials,
	auth.KindRevoked:            auth.ErrRevoked,
	auth.KindAccountNotFound:    auth.ErrAccountNotFound,
	auth.KindInactive:           auth.ErrInactive,
	auth.KindForbidden:          auth.ErrForbidden,
	auth.KindNotFound:           auth.ErrNotFound,
	auth.KindConflict:           auth.ErrConflict,
	auth.KindInvalidRange:       auth.ErrInvalidRange,
	auth.KindInvalidInput:       auth.ErrInvalidInput,
}

func statusFor(kind string) int {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindRevoked, auth.KindAccountNotFound:
		return http.StatusUnauthorized
	case auth.KindInactive, auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindInvalidRange, auth.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the detail attached to a domain error. Internal
// errors never reach the client.
func publicMessage(kind string, err error) string {
	switch kind {
	case auth.KindRevoked:
		return revokedMessage
	case auth.KindInternal:
		return "operation failed"
	}
	msg := err.Error()
	prefix := sentinels[kind].Error()
	if i := strings.Index(msg, prefix+": "); i >= 0 {
		return msg[i+len(prefix)+2:]
	}
	switch kind {
	case auth.KindInvalidCredentials:
		return "could not validate credentials"
	case auth.KindAccountNotFound:
		return "user not found"
	case auth.KindInactive:
		return "inactive user"
	default:
		return strings.TrimPrefix(prefix, "auth: ")
	}
}

// writeAuthError maps a domain error onto the HTTP taxonomy.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		a.log.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, r, code, kind, publicMessage(kind, err))
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
		"kind":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", auth.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %s", auth.ErrInvalidInput, err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", auth.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", auth.ErrInvalidInput, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", auth.ErrInvalidInput, name)
	}
	return v, nil
}

func queryInt64Ptr(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", auth.ErrInvalidInput, name)
	}
	return &v, nil
}
