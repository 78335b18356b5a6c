package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/adaptor"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/util"
)

const maxBodyBytes = 1 << 20

// Server exposes the orchestration handlers over HTTP. It is a thin shim:
// decode the JSON body, collect the routing headers, call the handler, map
// the error class to a status code. The interesting outcomes of the transfer
// pipeline travel out-of-band as hub callbacks, so a handled failure there
// still answers 200.
type Server struct {
	adaptor *adaptor.Adaptor
	logger  zerolog.Logger
}

// NewServer constructs the HTTP layer over the given adaptor.
func NewServer(a *adaptor.Adaptor, logger zerolog.Logger) (*Server, error) {
	if a == nil {
		return nil, errors.New("api: adaptor is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Server{adaptor: a, logger: logger.With().Str("component", "api").Logger()}, nil
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/iso8583", func(r chi.Router) {
		r.Post("/transactionRequests", s.handleTransactionRequests)
		r.Post("/financialRequests", s.handleFinancialRequests)
		r.Post("/reversalRequests", s.handleReversalRequests)
	})

	r.Put("/parties/{type}/{id}", s.handleParties)
	r.Post("/quotes", s.handleQuotes)
	r.Post("/transfers", s.handleTransfers)
	r.Put("/transactions/{id}", s.handleTransactionUpdate)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransactionRequests(w http.ResponseWriter, r *http.Request) {
	var request models.LegacyTransactionRequest
	if !s.decode(w, r, &request) {
		return
	}
	s.respond(w, s.adaptor.HandleTransactionRequest(r.Context(), request), http.StatusAccepted)
}

func (s *Server) handleFinancialRequests(w http.ResponseWriter, r *http.Request) {
	var request models.LegacyFinancialRequest
	if !s.decode(w, r, &request) {
		return
	}
	s.respond(w, s.adaptor.HandleFinancialRequest(r.Context(), request), http.StatusAccepted)
}

func (s *Server) handleReversalRequests(w http.ResponseWriter, r *http.Request) {
	var request models.LegacyReversalRequest
	if !s.decode(w, r, &request) {
		return
	}
	s.respond(w, s.adaptor.HandleReversalRequest(r.Context(), request), http.StatusAccepted)
}

func (s *Server) handleParties(w http.ResponseWriter, r *http.Request) {
	var payload models.PartiesPutResponse
	if !s.decode(w, r, &payload) {
		return
	}
	s.respond(w, s.adaptor.HandleParties(r.Context(), payload, routingHeaders(r)), http.StatusOK)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	var request models.QuotesPostRequest
	if !s.decode(w, r, &request) {
		return
	}
	if _, err := util.ParseUUIDv4(request.QuoteID); err != nil {
		s.writeError(w, http.StatusBadRequest, "quoteId must be a version 4 uuid")
		return
	}
	s.respond(w, s.adaptor.HandleQuoteRequest(r.Context(), request, routingHeaders(r)), http.StatusAccepted)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	var request models.TransfersPostRequest
	if !s.decode(w, r, &request) {
		return
	}
	if _, err := util.ParseUUIDv4(request.TransferID); err != nil {
		s.writeError(w, http.StatusBadRequest, "transferId must be a version 4 uuid")
		return
	}
	s.respond(w, s.adaptor.HandleTransferRequest(r.Context(), request, routingHeaders(r)), http.StatusOK)
}

func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	var payload models.TransactionsIDPutResponse
	if !s.decode(w, r, &payload) {
		return
	}
	transactionID := chi.URLParam(r, "id")
	s.respond(w, s.adaptor.HandleTransactionUpdate(r.Context(), transactionID, payload), http.StatusOK)
}

func routingHeaders(r *http.Request) adaptor.Headers {
	return adaptor.Headers{
		Source:        r.Header.Get("fspiop-source"),
		Destination:   r.Header.Get("fspiop-destination"),
		CorrelationID: r.Header.Get("traceid"),
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer io.Copy(io.Discard, r.Body) //nolint:errcheck
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("rejecting malformed request body")
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, err error, successStatus int) {
	if err == nil {
		s.writeJSON(w, successStatus, map[string]string{"status": "accepted"})
		return
	}
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	} else {
		s.logger.Warn().Err(err).Msg("request rejected")
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, adaptor.ErrValidation), errors.Is(err, adaptor.ErrTranslation):
		return http.StatusBadRequest
	case errors.Is(err, adaptor.ErrDomain):
		return http.StatusNotFound
	case errors.Is(err, adaptor.ErrStateViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
