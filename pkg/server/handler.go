package server

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

// QueryRequest is the body of /api/query and /api/chat. Chat clients send message instead of query.
type QueryRequest struct {
	Query   string             `json:"query,omitempty" jsonschema:"the question, at least 3 characters"`
	Message string             `json:"message,omitempty" jsonschema:"alias of query used by /api/chat"`
	Options model.QueryOptions `json:"options,omitempty" jsonschema:"retrieval options"`
}

func (r *QueryRequest) text() string {
	if r.Query != "" {
		return r.Query
	}
	return r.Message
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

func (s *Server) stats(c echo.Context) error {
	stats, err := s.retriever.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, response{
			Error:   "Failed to get statistics",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, response{Success: true, Data: stats})
}

func (s *Server) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response{
			Error:   "Invalid input",
			Message: "Request body must be JSON",
		})
	}

	text := strings.TrimSpace(req.text())
	if text == "" {
		return c.JSON(http.StatusBadRequest, response{
			Error:   "Invalid input",
			Message: "Query must be a non-empty string",
		})
	}
	if utf8.RuneCountInString(text) < model.MinQueryLength {
		return c.JSON(http.StatusBadRequest, response{
			Error:   "Query too short",
			Message: "Query must be at least 3 characters long",
		})
	}

	ctx := c.Request().Context()
	result, err := s.retriever.Query(ctx, text, req.Options)
	if err != nil {
		if model.ErrorKind(err) == "validation" {
			return c.JSON(http.StatusBadRequest, response{
				Error:   "Invalid input",
				Message: err.Error(),
			})
		}

		logging.From(ctx).Error("query failed", "error", err, "kind", model.ErrorKind(err))
		return c.JSON(http.StatusInternalServerError, response{
			Error:   "Failed to process query",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, response{Success: true, Data: result})
}

func (s *Server) docs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":        ServiceName,
		"description": "REST API for querying the knowledge base synchronized from Google Drive",
		"endpoints": map[string]any{
			"GET /health":    "Health check",
			"GET /api/stats": "Document count and system status",
			"POST /api/query": map[string]any{
				"description": "Answer a question from the knowledge base",
				"body":        s.requestSchema,
			},
			"POST /api/chat": map[string]any{
				"description": "Same as /api/query; accepts message in place of query",
				"body":        s.requestSchema,
			},
		},
		"examples": map[string]any{
			"query": map[string]any{
				"url": "POST /api/query",
				"body": map[string]any{
					"query":   "Rau củ hữu cơ là gì?",
					"options": map[string]any{"maxResults": 5, "language": "vi"},
				},
			},
		},
	})
}

// handleError renders framework errors such as unknown routes as JSON.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	body := response{Error: http.StatusText(code), Message: err.Error()}
	switch code {
	case http.StatusNotFound:
		body.Error = "Not found"
		body.Message = "Endpoint " + c.Request().Method + " " + c.Request().URL.Path + " not found"
	case http.StatusMethodNotAllowed:
		body.Message = "Method " + c.Request().Method + " not allowed"
	case http.StatusInternalServerError:
		body.Error = "Internal server error"
		s.logger.Error("unhandled server error", "error", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, body)
	}
	if writeErr != nil {
		s.logger.Error("failed to write error response", "error", writeErr)
	}
}
