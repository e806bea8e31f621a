package api

import (
	"errors"
	"net/http"

	"sciphi-chat/internal/completions"
	"sciphi-chat/pkg/api"

	"github.com/go-chi/chi/v5"
)

const missingAPIKeyMessage = "The SCIPHI_API_KEY is missing!"

type CompletionsService struct {
	service *completions.Service
}

func NewCompletionsService(service *completions.Service) *CompletionsService {
	return &CompletionsService{service: service}
}

func (s *CompletionsService) AddRoutes(r chi.Router) {
	// Registered for every method so non-POST requests get the plain text 405.
	r.HandleFunc("/completions", s.handleCompletions)
}

func (s *CompletionsService) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	RestHandler(s.Complete)(w, r)
}

func (s *CompletionsService) Complete(r *http.Request) (any, error) {
	if !s.service.Configured() {
		return nil, CodedError(http.StatusInternalServerError, errors.New(missingAPIKeyMessage))
	}

	req, err := ParseRequest[api.CompletionRequest](r)
	if err != nil {
		return nil, err
	}

	res, err := s.service.Complete(r.Context(), req)
	if err != nil {
		if errors.Is(err, completions.ErrMissingAPIKey) {
			return nil, CodedError(http.StatusInternalServerError, errors.New(missingAPIKeyMessage))
		}
		return nil, CodedError(http.StatusBadGateway, err)
	}

	return res, nil
}
