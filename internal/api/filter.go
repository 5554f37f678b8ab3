package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

// Filter is the query string shared by the page, the JSON endpoints and exports.
// Coins may repeat or be comma separated: ?coins=bitcoin&coins=ethereum or
// ?coins=bitcoin,ethereum.
type Filter struct {
	Coins     []string `schema:"coins"`
	Currency  string   `schema:"currency"`
	From      string   `schema:"from"`
	To        string   `schema:"to"`
	Coin      string   `schema:"coin"`      // single coin for history exports
	Submitted bool     `schema:"submitted"` // set by the dashboard form
}

// decodeFilter parses the request query into a Filter.
func (api *API) decodeFilter(r *http.Request) (Filter, error) {
	var f Filter
	if err := api.queryDecoder.Decode(&f, r.URL.Query()); err != nil {
		return Filter{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err.Error())
	}
	f.Coins = splitList(f.Coins)
	return f, nil
}

// withDefaults fills what a first visit to the page leaves out.
func (api *API) withDefaults(f Filter) Filter {
	if len(f.Coins) == 0 && !f.Submitted {
		f.Coins = append([]string(nil), api.defaultCoins...)
	}
	return f
}

// marketQuery builds the current snapshot query.
func (api *API) marketQuery(f Filter) domain.Query {
	return domain.Query{
		CoinIDs:  f.Coins,
		Currency: api.currency(f),
	}
}

// checkedMarketQuery builds the snapshot query after checking the entered
// date range, so a bad range never reaches the service.
func (api *API) checkedMarketQuery(f Filter) (domain.Query, error) {
	if _, err := api.dayRange(f); err != nil {
		return domain.Query{}, err
	}
	return api.marketQuery(f), nil
}

// historyQuery builds the history query. Missing dates default to the
// lookback window ending today.
func (api *API) historyQuery(f Filter) (domain.Query, error) {
	rng, err := api.dayRange(f)
	if err != nil {
		return domain.Query{}, err
	}
	q := api.marketQuery(f)
	q.Range = rng
	return q, nil
}

// dayRange parses the entered dates, defaults applied, and checks their order.
func (api *API) dayRange(f Filter) (domain.DateRange, error) {
	rng, err := domain.ParseDayRange(api.dateBounds(f))
	if err == nil {
		err = rng.Validate()
	}
	if err != nil {
		observability.RecordQueryRejected()
		return domain.DateRange{}, err
	}
	return rng, nil
}

// dateBounds returns the from and to dates as entered, defaults applied.
func (api *API) dateBounds(f Filter) (string, string) {
	today := api.now().UTC()
	from, to := strings.TrimSpace(f.From), strings.TrimSpace(f.To)
	if to == "" {
		to = today.Format(domain.DateLayout)
	}
	if from == "" {
		from = today.AddDate(0, 0, -api.lookbackDays).Format(domain.DateLayout)
	}
	return from, to
}

func (api *API) currency(f Filter) string {
	if c := strings.TrimSpace(f.Currency); c != "" {
		return c
	}
	if len(api.currencies) > 0 {
		return api.currencies[0]
	}
	return ""
}

// splitList flattens comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// lastUpdated returns the newest record timestamp, or zero.
func lastUpdated(records []domain.CoinRecord) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return latest
}
