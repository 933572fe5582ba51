package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckrentgo/internal/middleware"
	"github.com/xelth-com/eckrentgo/internal/serial"
)

type serialRequest struct {
	Year        int    `json:"year,omitempty"`
	Width       int    `json:"width,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	ResetPolicy string `json:"resetPolicy,omitempty"`
}

func (b serialRequest) options() (serial.Options, error) {
	opts := serial.Options{Year: b.Year, Width: b.Width, Prefix: b.Prefix}
	if b.ResetPolicy != "" {
		policy, err := serial.ParseResetPolicy(b.ResetPolicy)
		if err != nil {
			return opts, err
		}
		opts.ResetPolicy = policy
	}
	return opts, nil
}

// issueSerial allocates the next number for an entity kind. The body is optional.
func (r *Router) issueSerial(w http.ResponseWriter, req *http.Request) {
	kind, err := serial.ParseEntityKind(mux.Vars(req)["entity"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var body serialRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	opts, err := body.options()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.ActorID = middleware.ActorFromContext(req.Context())
	opts.IPAddress = req.RemoteAddr
	opts.UserAgent = req.UserAgent()

	s, err := r.deps.Serials.IssueNextSerial(req.Context(), kind, opts)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// peekSerial shows the last issued number without consuming one
func (r *Router) peekSerial(w http.ResponseWriter, req *http.Request) {
	kind, err := serial.ParseEntityKind(mux.Vars(req)["entity"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	q := req.URL.Query()
	body := serialRequest{Prefix: q.Get("prefix"), ResetPolicy: q.Get("resetPolicy")}
	if y := q.Get("year"); y != "" {
		if body.Year, err = strconv.Atoi(y); err != nil {
			respondError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
	}
	opts, err := body.options()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := r.deps.Serials.Peek(req.Context(), kind, opts)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}
