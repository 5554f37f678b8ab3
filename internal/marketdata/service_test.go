package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-dashboard/internal/coingecko"
	"crypto-dashboard/internal/coingecko/stub"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func dailySeries(id string, start time.Time, days int, price float64) *domain.HistoricalSeries {
	s := &domain.HistoricalSeries{CoinID: id, Currency: "usd"}
	for i := 0; i < days; i++ {
		s.Points = append(s.Points, domain.SeriesPoint{
			Timestamp: start.AddDate(0, 0, i),
			Price:     dec(price + float64(i)),
			MarketCap: dec(price * 1000),
			Volume:    dec(price * 10),
		})
	}
	return s
}

func setupService(t *testing.T) (*Service, *stub.Client) {
	t.Helper()

	client := stub.NewClient()
	client.AddMarket(domain.CoinRecord{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: dec(16000), MarketCap: dec(300)})
	client.AddMarket(domain.CoinRecord{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: dec(1200), MarketCap: dec(100)})

	jan1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	client.AddSeries(dailySeries("bitcoin", jan1, 7, 16000))
	client.AddSeries(dailySeries("ethereum", jan1, 7, 1200))

	svc := NewService(Options{
		Client:     client,
		Currencies: []string{"usd", "eur"},
		Now:        func() time.Time { return fixedNow },
	})
	return svc, client
}

func week2023() domain.DateRange {
	r, _ := domain.ParseDayRange("2023-01-01", "2023-01-07")
	return r
}

func TestService_Markets(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()

	records, err := svc.Markets(ctx, domain.Query{CoinIDs: []string{"Bitcoin", "ethereum"}, Currency: "USD"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bitcoin", records[0].ID)

	// served from cache
	_, err = svc.Markets(ctx, domain.Query{CoinIDs: []string{"bitcoin", "ethereum"}, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.Calls(coingecko.EndpointMarkets))
	assert.Equal(t, 1, svc.CachedItems())

	svc.Flush()
	_, err = svc.Markets(ctx, domain.Query{CoinIDs: []string{"bitcoin", "ethereum"}, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Calls(coingecko.EndpointMarkets))
}

func TestService_Markets_UnknownCoin(t *testing.T) {
	svc, _ := setupService(t)

	records, err := svc.Markets(context.Background(), domain.Query{CoinIDs: []string{"bitcoin", "notacoin"}, Currency: "usd"})
	assert.Nil(t, records)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Equal(t, 0, svc.CachedItems(), "failures are not cached")
}

func TestService_RejectsInvalidQueryWithoutFetching(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()

	reversed := domain.DateRange{
		Start: time.Date(2023, 1, 7, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := svc.History(ctx, domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd", Range: reversed})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = svc.History(ctx, domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery, "history requires a range")

	_, err = svc.Markets(ctx, domain.Query{Currency: "usd"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = svc.Markets(ctx, domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "jpy"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	assert.Equal(t, 0, client.TotalCalls())
}

func TestService_History(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()

	series, err := svc.History(ctx, domain.Query{CoinIDs: []string{"bitcoin", "ethereum"}, Currency: "usd", Range: week2023()})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "bitcoin", series[0].CoinID)
	assert.Equal(t, 7, series[0].Len())
	assert.Equal(t, "ethereum", series[1].CoinID)
	assert.Equal(t, 7, series[1].Len())
	assert.Equal(t, 2, client.Calls(coingecko.EndpointMarketChart))

	// cached per coin
	_, err = svc.History(ctx, domain.Query{CoinIDs: []string{"ethereum"}, Currency: "usd", Range: week2023()})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Calls(coingecko.EndpointMarketChart))
}

func TestService_History_AllOrNothing(t *testing.T) {
	svc, _ := setupService(t)

	series, err := svc.History(context.Background(), domain.Query{
		CoinIDs:  []string{"bitcoin", "notacoin"},
		Currency: "usd",
		Range:    week2023(),
	})
	assert.Nil(t, series)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "notacoin")
}

func TestService_History_ClampsFutureEnd(t *testing.T) {
	svc, _ := setupService(t)

	r, err := domain.ParseDayRange("2023-01-01", "2099-01-01")
	require.NoError(t, err)

	series, err := svc.History(context.Background(), domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd", Range: r})
	require.NoError(t, err)
	assert.Equal(t, 7, series[0].Len())

	future, err := domain.ParseDayRange("2098-01-01", "2099-01-01")
	require.NoError(t, err)
	_, err = svc.History(context.Background(), domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd", Range: future})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestService_Coins(t *testing.T) {
	svc, client := setupService(t)
	client.Coins = []domain.CoinInfo{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}}

	for i := 0; i < 3; i++ {
		coins, err := svc.Coins(context.Background())
		require.NoError(t, err)
		assert.Len(t, coins, 1)
	}
	assert.Equal(t, 1, client.Calls(coingecko.EndpointCoinList))
}

func marketMisses() float64 {
	return testutil.ToFloat64(observability.DefaultMetrics.CacheLookups.WithLabelValues(kindMarkets, "miss"))
}

func TestService_ConcurrentCallersShareOneFetch(t *testing.T) {
	svc, client := setupService(t)
	client.Gate = make(chan struct{})
	q := domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd"}

	const callers = 8
	before := marketMisses()

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Markets(context.Background(), q)
			errs <- err
		}()
	}

	// every caller has missed the cache before the upstream call is released
	require.Eventually(t, func() bool {
		return marketMisses()-before == callers
	}, time.Second, time.Millisecond)
	close(client.Gate)

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, client.Calls(coingecko.EndpointMarkets))
}

func TestService_CanceledCallerDoesNotFailOthers(t *testing.T) {
	svc, client := setupService(t)
	client.Gate = make(chan struct{})
	q := domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd"}
	before := marketMisses()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := svc.Markets(ctx, q)
		first <- err
	}()
	require.Eventually(t, func() bool {
		return client.Calls(coingecko.EndpointMarkets) == 1
	}, time.Second, time.Millisecond)

	type result struct {
		records []domain.CoinRecord
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := svc.Markets(context.Background(), q)
		second <- result{records, err}
	}()
	require.Eventually(t, func() bool {
		return marketMisses()-before == 2
	}, time.Second, time.Millisecond)

	cancel()
	err := <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	close(client.Gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.records, 1)
	assert.Equal(t, 1, client.Calls(coingecko.EndpointMarkets))
	assert.Equal(t, 1, svc.CachedItems())
}

func TestService_FailedFetchIsNotCached(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()
	q := domain.Query{CoinIDs: []string{"bitcoin"}, Currency: "usd"}

	client.Err = &domain.FetchError{Op: coingecko.EndpointMarkets, StatusCode: 502}
	_, err := svc.Markets(ctx, q)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Equal(t, 0, svc.CachedItems())

	client.Err = nil
	records, err := svc.Markets(ctx, q)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, client.Calls(coingecko.EndpointMarkets), "the failure was not served from cache")
}
