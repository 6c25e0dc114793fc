package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/svcerr"
)

// envelope is the uniform response wrapper.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Code: 200, Msg: "success", Data: data})
}

// fail maps an error onto the envelope. Schema violations are HTTP 400
// with field details; business refusals are HTTP 200 with envelope code
// 500 so the UI renders the message; everything else is an opaque 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *plan.SchemaError
	if errors.As(err, &schemaErr) {
		s.writeJSON(w, http.StatusBadRequest, envelope{
			Code: 400,
			Msg:  "invalid request",
			Data: map[string]any{"errors": schemaErr.Errors},
		})
		return
	}
	if bizErr, ok := svcerr.As(err); ok {
		s.writeJSON(w, http.StatusOK, envelope{
			Code: 500,
			Msg:  bizErr.Message,
			Data: bizErr.Data,
		})
		return
	}
	s.logger.Error("request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, envelope{
		Code: 500,
		Msg:  "internal server error",
	})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, envelope{Code: 400, Msg: msg})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusUnauthorized, envelope{
		Code: 401,
		Msg:  "missing X-Job-Number header",
	})
}
