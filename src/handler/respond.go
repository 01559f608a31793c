package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"
)

// pagedResponse wraps paged list endpoints so the frontend can render
// pagination controls without a second count request.
type pagedResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parsePaging reads page/pageSize query parameters with the defaults
// used across all list endpoints.
func parsePaging(r *http.Request) (page, pageSize int, err error) {
	page = 1
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		parsedPage, parseErr := strconv.Atoi(pageParam)
		if parseErr != nil || parsedPage <= 0 {
			return 0, 0, errors.New("invalid page")
		}
		page = parsedPage
	}

	pageSize = 20
	if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
		parsedSize, parseErr := strconv.Atoi(sizeParam)
		if parseErr != nil || parsedSize <= 0 {
			return 0, 0, errors.New("invalid pageSize")
		}
		pageSize = parsedSize
	}

	return page, pageSize, nil
}
