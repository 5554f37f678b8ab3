package api

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-echarts/go-echarts/v2/components"
	"go.uber.org/zap"

	"crypto-dashboard/internal/charts"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/table"
)

const dashboardTitle = "Cryptocurrency Dashboard"

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type option struct {
	ID       string
	Code     string
	Label    string
	Selected bool
}

type tableView struct {
	Columns []string
	Rows    [][]string
}

type historySection struct {
	Label string
	Table *tableView
	CSV   string
	XLSX  string
}

type dashboardView struct {
	Title        string
	Coins        []option
	Currencies   []option
	From, To     string
	FilterError  string
	Markets      *tableView
	MarketsError string
	MarketsCSV   string
	MarketsXLSX  string
	Dominance    *tableView
	History      []historySection
	HistoryError string
	ChartsURL    string
	LastUpdated  string
	DataSource   string
}

// Dashboard renders the page: selection form, market and history tables,
// chart frame and download links. A failed section shows its error instead
// of a table; the rest of the page still renders. A rejected filter renders
// the form and the error only, without fetching anything.
func (api *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{Title: dashboardTitle, DataSource: DataSource}

	f, err := api.decodeFilter(r)
	if err != nil {
		f = Filter{}
	}
	f = api.withDefaults(f)
	if err == nil {
		_, err = api.dayRange(f)
	}

	view.From, view.To = api.dateBounds(f)
	currency := api.currency(f)
	view.Coins = api.coinOptions(f.Coins)
	view.Currencies = api.currencyOptions(currency)

	if err != nil {
		view.FilterError = userMessage(err)
	} else {
		api.loadSections(r, f, exportParams(f.Coins, currency, view.From, view.To), &view)
	}

	if view.LastUpdated == "" {
		view.LastUpdated = api.now().UTC().Format(table.TimeLayout) + " UTC"
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		api.logger.Error("render dashboard", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// loadSections fetches market and history data into view.
func (api *API) loadSections(r *http.Request, f Filter, params url.Values, view *dashboardView) {
	records, err := api.svc.Markets(r.Context(), api.marketQuery(f))
	api.noteFetch(err)
	if err != nil {
		view.MarketsError = userMessage(err)
	} else {
		view.Markets = newTableView(table.MarketTable(records))
		view.MarketsCSV = "/export/markets.csv?" + params.Encode()
		view.MarketsXLSX = "/export/markets.xlsx?" + params.Encode()
		if shares := table.Dominance(records); len(shares) > 0 {
			view.Dominance = newTableView(table.DominanceTable(shares))
		}
		if ts := lastUpdated(records); !ts.IsZero() {
			view.LastUpdated = ts.UTC().Format(table.TimeLayout) + " UTC"
		}
	}

	series, err := api.fetchHistory(r, f)
	if err != nil {
		view.HistoryError = userMessage(err)
	} else {
		all := table.HistoryTable(series...)
		for _, s := range series {
			p := cloneValues(params)
			p.Set("coin", s.CoinID)
			view.History = append(view.History, historySection{
				Label: titleCase(s.CoinID),
				Table: newTableView(table.ForCoin(all, s.CoinID)),
				CSV:   "/export/history.csv?" + p.Encode(),
				XLSX:  "/export/history.xlsx?" + p.Encode(),
			})
		}
	}

	if view.MarketsError == "" || view.HistoryError == "" {
		view.ChartsURL = "/charts?" + params.Encode()
	}
}

// Charts renders the chart page embedded by the dashboard. Charts whose data
// failed to load are left out; if nothing loaded the error is returned.
func (api *API) Charts(w http.ResponseWriter, r *http.Request) {
	f, err := api.decodeFilter(r)
	if err != nil {
		api.jsonFailure(w, "Charts", err)
		return
	}
	f = api.withDefaults(f)
	q, err := api.checkedMarketQuery(f)
	if err != nil {
		api.jsonFailure(w, "Charts", err)
		return
	}

	var cs []components.Charter

	records, marketsErr := api.svc.Markets(r.Context(), q)
	api.noteFetch(marketsErr)
	if marketsErr == nil {
		cs = append(cs, charts.PriceBar(records, q.Currency), charts.ChangeBar(records))
		if shares := table.Dominance(records); len(shares) > 0 {
			cs = append(cs, charts.DominancePie(shares))
		}
	}

	series, historyErr := api.fetchHistory(r, f)
	if historyErr == nil {
		for _, s := range series {
			cs = append(cs, charts.HistoryLine(s))
		}
	}

	if marketsErr != nil && historyErr != nil {
		api.jsonFailure(w, "Charts", marketsErr)
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderPage(&buf, dashboardTitle, cs...); err != nil {
		api.jsonFailure(w, "Charts", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (api *API) fetchHistory(r *http.Request, f Filter) ([]*domain.HistoricalSeries, error) {
	q, err := api.historyQuery(f)
	if err != nil {
		return nil, err
	}
	series, err := api.svc.History(r.Context(), q)
	api.noteFetch(err)
	return series, err
}

func (api *API) coinOptions(selected []string) []option {
	opts := make([]option, 0, len(api.coins))
	for _, id := range api.coins {
		opts = append(opts, option{ID: id, Label: titleCase(id), Selected: containsFold(selected, id)})
	}
	return opts
}

func (api *API) currencyOptions(selected string) []option {
	opts := make([]option, 0, len(api.currencies))
	for _, c := range api.currencies {
		opts = append(opts, option{Code: c, Label: strings.ToUpper(c), Selected: strings.EqualFold(c, selected)})
	}
	return opts
}

// userMessage turns an error into text for the page.
func userMessage(err error) string {
	var fe *domain.FetchError
	switch {
	case errors.As(err, &fe) && fe.RateLimited():
		if fe.RetryAfter > 0 {
			return fmt.Sprintf("The data provider is rate limiting requests. Try again in %d seconds.",
				int(math.Ceil(fe.RetryAfter.Seconds())))
		}
		return "The data provider is rate limiting requests. Try again shortly."
	case errors.Is(err, domain.ErrInvalidQuery):
		return strings.TrimPrefix(err.Error(), domain.ErrInvalidQuery.Error()+": ")
	case errors.Is(err, domain.ErrDataUnavailable):
		return "Market data is unavailable: " + err.Error()
	default:
		return "Unexpected error, see server logs."
	}
}

func newTableView(t *table.Table) *tableView {
	return &tableView{Columns: t.Columns, Rows: t.Strings()}
}

func exportParams(coins []string, currency, from, to string) url.Values {
	v := url.Values{}
	if len(coins) > 0 {
		v.Set("coins", strings.Join(coins, ","))
	}
	v.Set("currency", currency)
	v.Set("from", from)
	v.Set("to", to)
	return v
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
