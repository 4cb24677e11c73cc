// Package services implements the REST surface of the console on top of the
// goa HTTP runtime: a shared muxer, goa's content-negotiating encoders and
// goa.ServiceError values for failures.
package services

import (
	"context"
	"errors"
	"net/http"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"
	goa "goa.design/goa/v3/pkg"

	"aeroguardian/internal/auth"
	"aeroguardian/internal/console"
	"aeroguardian/internal/frame"
	"aeroguardian/internal/logging"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// Error names returned in the "name" field of error bodies
const (
	ErrNameBadRequest     = "bad_request"
	ErrNameBadFrame       = "bad_frame"
	ErrNameUnknownMode    = "unknown_mode"
	ErrNameSourceInactive = "source_inactive"
	ErrNameInference      = "inference_failure"
	ErrNameTimeout        = "detector_timeout"
	ErrNameIntegrity      = "data_integrity"
	ErrNameUnauthorized   = "unauthorized"
	ErrNameTooLarge       = "payload_too_large"
	ErrNameUnavailable    = "unavailable"
	ErrNameInternal       = "internal"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Name    string `json:"name"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
	Fault   bool   `json:"fault,omitempty"`
}

// MountPoint describes one mounted route
type MountPoint struct {
	Method  string
	Verb    string
	Pattern string
}

// ServiceError maps a domain error to a goa service error
func ServiceError(err error) *goa.ServiceError {
	var se *goa.ServiceError
	if errors.As(err, &se) {
		return se
	}

	var integrity *pipeline.DataIntegrityError
	switch {
	case errors.Is(err, frame.ErrBadFrame):
		return goa.PermanentError(ErrNameBadFrame, "%s", err.Error())
	case errors.Is(err, mode.ErrUnknownMode):
		return goa.PermanentError(ErrNameUnknownMode, "%s", err.Error())
	case errors.Is(err, console.ErrSourceInactive):
		return goa.PermanentError(ErrNameSourceInactive, "%s", err.Error())
	case errors.As(err, &integrity):
		return goa.PermanentError(ErrNameIntegrity, "%s", err.Error())
	case errors.Is(err, pipeline.ErrInferenceFailure) && errors.Is(err, context.DeadlineExceeded):
		return goa.NewServiceError(err, ErrNameTimeout, true, true, false)
	case errors.Is(err, pipeline.ErrInferenceFailure):
		return goa.NewServiceError(err, ErrNameInference, false, true, false)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAuthDisabled):
		return goa.PermanentError(ErrNameUnauthorized, "%s", err.Error())
	}
	return goa.Fault("%s", err.Error())
}

// StatusCode returns the HTTP status for a service error name
func StatusCode(se *goa.ServiceError) int {
	switch se.Name {
	case ErrNameBadRequest, ErrNameBadFrame, ErrNameUnknownMode:
		return http.StatusBadRequest
	case ErrNameUnauthorized:
		return http.StatusUnauthorized
	case ErrNameSourceInactive:
		return http.StatusConflict
	case ErrNameTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrNameIntegrity:
		return http.StatusUnprocessableEntity
	case ErrNameInference:
		return http.StatusBadGateway
	case ErrNameTimeout:
		return http.StatusGatewayTimeout
	case ErrNameUnavailable:
		return http.StatusServiceUnavailable
	}
	if se.Fault {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// writeError logs and writes err as an ErrorResponse
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	se := ServiceError(err)
	status := StatusCode(se)

	reqID, _ := ctx.Value(middleware.RequestIDKey).(string)
	log := logging.Component("http")
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("request_id", reqID).Str("name", se.Name).Int("status", status).Msg(se.Message)

	body := &ErrorResponse{Name: se.Name, ID: reqID, Message: se.Message, Fault: se.Fault}
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	_ = enc.Encode(body)
}

// writeJSON encodes v with the negotiated encoder
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		l := logging.Component("http")
		l.Error().Err(err).Msg("encode response")
	}
}

// decodeJSON decodes the request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		return goa.PermanentError(ErrNameBadRequest, "invalid request body: %s", err.Error())
	}
	return nil
}

func mount(mux goahttp.Muxer, method, verb, pattern string, h http.HandlerFunc) MountPoint {
	mux.Handle(verb, pattern, h)
	return MountPoint{Method: method, Verb: verb, Pattern: pattern}
}
