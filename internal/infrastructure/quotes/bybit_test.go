package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/points_trading/internal/domain"
	"go.uber.org/zap"
)

func TestFetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			w.Write([]byte(`{"retCode":0,"result":{"list":[{"lastPrice":"42123.5"}]}}`))
		default:
			w.Write([]byte(`{"retCode":0,"result":{"list":[]}}`))
		}
	}))
	defer srv.Close()

	adapter := NewBybitAdapter(srv.URL, "", zap.NewNop())

	price, err := adapter.FetchPrice(context.Background(), "BTCUSDT", "linear")
	require.NoError(t, err)
	assert.Equal(t, 42123.5, price)

	_, err = adapter.FetchPrice(context.Background(), "NOSUCH", "linear")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestFetchPrice_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewBybitAdapter(srv.URL, "", zap.NewNop())
	_, err := adapter.FetchPrice(context.Background(), "BTCUSDT", "linear")
	assert.Error(t, err)
}

func TestHandleMessage_DispatchesTickerCallbacks(t *testing.T) {
	adapter := NewBybitAdapter("", "", zap.NewNop())

	var gotSymbol string
	var gotPrice float64
	adapter.OnPriceUpdate(func(symbol string, price float64) {
		gotSymbol, gotPrice = symbol, price
	})

	adapter.handleMessage([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"42000.1"}}`))
	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, 42000.1, gotPrice)

	// Non-ticker frames and malformed prices are ignored.
	adapter.handleMessage([]byte(`{"op":"subscribe","success":true}`))
	adapter.handleMessage([]byte(`{"topic":"tickers.ETHUSDT","data":{"symbol":"ETHUSDT","lastPrice":"nan?"}}`))
	assert.Equal(t, "BTCUSDT", gotSymbol)
}
