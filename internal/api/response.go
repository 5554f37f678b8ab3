package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/table"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// tableResponse is a table as JSON. Numbers are JSON numbers, nulls are null.
type tableResponse struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func newTableResponse(t *table.Table) tableResponse {
	rows := make([][]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		vals := make([]interface{}, len(row))
		for j, c := range row {
			vals[j] = cellValue(c)
		}
		rows[i] = vals
	}
	return tableResponse{Name: t.Name, Columns: t.Columns, Rows: rows}
}

func cellValue(c table.Cell) interface{} {
	switch c.Kind {
	case table.KindNumber:
		return json.Number(c.Number.String())
	case table.KindNull:
		return nil
	default:
		return c.String()
	}
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var fe *domain.FetchError
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.As(err, &fe) && fe.RateLimited():
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// setRetryAfter copies an upstream rate limit hint to the response.
func setRetryAfter(w http.ResponseWriter, err error) {
	var fe *domain.FetchError
	if errors.As(err, &fe) && fe.RateLimited() && fe.RetryAfter > 0 {
		secs := int(math.Ceil(fe.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

// jsonFailure writes err as a JSON error with its mapped status.
func (api *API) jsonFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		api.logger.Error("API "+op, zap.Error(err))
	} else {
		api.logger.Debug("API "+op, zap.Error(err))
	}
	setRetryAfter(w, err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	jsonStatus(w, status, errorResponse{Error: msg})
}

func jsonData(w http.ResponseWriter, data interface{}) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
