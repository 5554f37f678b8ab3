package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/export"
	"crypto-dashboard/internal/observability"
	"crypto-dashboard/internal/table"
)

// shareResponse is one dominance slice as JSON.
type shareResponse struct {
	Coin      string      `json:"coin"`
	Name      string      `json:"name"`
	MarketCap json.Number `json:"market_cap"`
	Percent   json.Number `json:"percent"`
}

// GetCoins returns the upstream coin list.
func (api *API) GetCoins(w http.ResponseWriter, r *http.Request) {
	coins, err := api.svc.Coins(r.Context())
	api.noteFetch(err)
	if err != nil {
		api.jsonFailure(w, "GetCoins", err)
		return
	}
	jsonData(w, coins)
}

// GetMarkets returns the market table for the selection.
func (api *API) GetMarkets(w http.ResponseWriter, r *http.Request) {
	f, err := api.decodeFilter(r)
	if err != nil {
		api.jsonFailure(w, "GetMarkets", err)
		return
	}
	q, err := api.checkedMarketQuery(f)
	if err != nil {
		api.jsonFailure(w, "GetMarkets", err)
		return
	}
	records, err := api.svc.Markets(r.Context(), q)
	api.noteFetch(err)
	if err != nil {
		api.jsonFailure(w, "GetMarkets", err)
		return
	}
	jsonData(w, newTableResponse(table.MarketTable(records)))
}

// GetHistory returns the history table for the selection, or for coin alone.
func (api *API) GetHistory(w http.ResponseWriter, r *http.Request) {
	t, _, err := api.historyTable(r)
	if err != nil {
		api.jsonFailure(w, "GetHistory", err)
		return
	}
	jsonData(w, newTableResponse(t))
}

// GetDominance returns each selected coin's share of the combined market cap.
func (api *API) GetDominance(w http.ResponseWriter, r *http.Request) {
	f, err := api.decodeFilter(r)
	if err != nil {
		api.jsonFailure(w, "GetDominance", err)
		return
	}
	q, err := api.checkedMarketQuery(f)
	if err != nil {
		api.jsonFailure(w, "GetDominance", err)
		return
	}
	records, err := api.svc.Markets(r.Context(), q)
	api.noteFetch(err)
	if err != nil {
		api.jsonFailure(w, "GetDominance", err)
		return
	}

	shares := table.Dominance(records)
	resp := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		resp = append(resp, shareResponse{
			Coin:      s.CoinID,
			Name:      s.Name,
			MarketCap: json.Number(s.MarketCap.String()),
			Percent:   json.Number(s.Percent.String()),
		})
	}
	jsonData(w, resp)
}

// Export downloads the market or history table as CSV or XLSX.
func (api *API) Export(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	format, err := export.ParseFormat(vars["format"])
	if err != nil {
		api.jsonFailure(w, "Export", fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err.Error()))
		return
	}

	var (
		t        *table.Table
		currency string
	)
	switch vars["table"] {
	case table.MarketTableName:
		t, currency, err = api.marketTable(r)
	case table.HistoryTableName:
		t, currency, err = api.historyTable(r)
	default:
		err = fmt.Errorf("%w: unknown table %q", domain.ErrInvalidQuery, vars["table"])
	}
	if err != nil {
		api.jsonFailure(w, "Export", err)
		return
	}

	data, err := export.Encode(t, format)
	if err != nil {
		api.jsonFailure(w, "Export", err)
		return
	}
	observability.RecordExport(vars["table"], string(format))

	name := format.Filename(t.Name + "_" + currency)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		api.logger.Warn("write export", zap.String("file", name), zap.Error(err))
	}
}

// Health reports liveness.
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status      string     `json:"status"`
	Uptime      string     `json:"uptime"`
	Started     time.Time  `json:"started"`
	Requests    int        `json:"requests"`
	CachedItems int        `json:"cached_items"`
	LastFetch   *time.Time `json:"last_fetch,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Status returns server status as JSON.
func (api *API) Status(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    api.now().Sub(api.started).Truncate(time.Second).String(),
		Started:   api.started,
		Requests:  api.requests,
		LastError: api.lastError,
	}
	if !api.lastFetch.IsZero() {
		last := api.lastFetch
		resp.LastFetch = &last
	}
	api.mu.Unlock()

	resp.CachedItems = api.svc.CachedItems()
	jsonData(w, resp)
}

// marketTable fetches the selection and builds its market table.
func (api *API) marketTable(r *http.Request) (*table.Table, string, error) {
	f, err := api.decodeFilter(r)
	if err != nil {
		return nil, "", err
	}
	q, err := api.checkedMarketQuery(f)
	if err != nil {
		return nil, "", err
	}
	records, err := api.svc.Markets(r.Context(), q)
	api.noteFetch(err)
	if err != nil {
		return nil, "", err
	}
	return table.MarketTable(records), strings.ToLower(q.Currency), nil
}

// historyTable fetches history for the selection, or only for ?coin=, and
// builds its table.
func (api *API) historyTable(r *http.Request) (*table.Table, string, error) {
	f, err := api.decodeFilter(r)
	if err != nil {
		return nil, "", err
	}
	coin := strings.ToLower(strings.TrimSpace(f.Coin))
	if coin != "" {
		f.Coins = []string{coin}
	}

	q, err := api.historyQuery(f)
	if err != nil {
		return nil, "", err
	}
	series, err := api.svc.History(r.Context(), q)
	api.noteFetch(err)
	if err != nil {
		return nil, "", err
	}

	t := table.HistoryTable(series...)
	if coin != "" {
		t = table.ForCoin(t, coin)
	}
	return t, strings.ToLower(q.Currency), nil
}
