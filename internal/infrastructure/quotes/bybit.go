package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/points_trading/internal/domain"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

// BybitAdapter quotes assets from Bybit's public v5 market API: REST for
// on-demand fetches and the public websocket ticker stream for continuous
// updates. It implements domain.PriceSource.
type BybitAdapter struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	wsConn    *websocket.Conn
	symbols   []string
	callbacks []func(symbol string, price float64)
}

func NewBybitAdapter(baseURL, wsURL string, logger *zap.Logger) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return &BybitAdapter{
		baseURL: baseURL,
		wsURL:   wsURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// --- REST API ---

// FetchPrice returns the last traded price for a symbol, one request per
// call. Unknown symbols map to domain.ErrPriceUnavailable.
func (b *BybitAdapter) FetchPrice(ctx context.Context, symbol, category string) (float64, error) {
	if category == "" {
		category = "linear"
	}
	path := fmt.Sprintf("/v5/market/tickers?category=%s&symbol=%s", category, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("ticker request failed: %s", string(body))
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Result.List) == 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}

	price, err := strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// --- WebSocket ---

// OnPriceUpdate registers a callback invoked for every streamed ticker.
func (b *BybitAdapter) OnPriceUpdate(callback func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Subscribe starts streaming tickers for the given symbols, dialing the
// websocket on first use. The read loop reconnects with exponential backoff
// until ctx is canceled.
func (b *BybitAdapter) Subscribe(ctx context.Context, symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.symbols = append(b.symbols, symbols...)

	if b.wsConn == nil {
		conn, err := b.dial()
		if err != nil {
			return err
		}
		b.wsConn = conn
		go b.readLoop(ctx)
	}
	return b.subscribe(b.wsConn, symbols)
}

func (b *BybitAdapter) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.wsURL, err)
	}
	return conn, nil
}

func (b *BybitAdapter) subscribe(conn *websocket.Conn, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	return conn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (b *BybitAdapter) readLoop(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		b.mu.Lock()
		conn := b.wsConn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				b.mu.Lock()
				b.wsConn = nil
				b.mu.Unlock()
				return
			}
			b.logger.Warn("ticker stream read failed, reconnecting", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}

			next, dialErr := b.dial()
			if dialErr != nil {
				b.logger.Warn("ticker stream reconnect failed", zap.Error(dialErr))
				continue
			}
			b.mu.Lock()
			b.wsConn = next
			symbols := append([]string(nil), b.symbols...)
			b.mu.Unlock()
			if err := b.subscribe(next, symbols); err != nil {
				b.logger.Warn("resubscribe failed", zap.Error(err))
			}
			continue
		}
		backoff = time.Second

		b.handleMessage(message)
	}
}

func (b *BybitAdapter) handleMessage(message []byte) {
	var event struct {
		Topic string `json:"topic"`
		Data  struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		return
	}
	if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
		return
	}

	price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
	if err != nil || price <= 0 {
		return
	}

	b.mu.Lock()
	callbacks := append(([]func(string, float64))(nil), b.callbacks...)
	b.mu.Unlock()
	for _, cb := range callbacks {
		cb(event.Data.Symbol, price)
	}
}

var _ domain.PriceSource = (*BybitAdapter)(nil)
