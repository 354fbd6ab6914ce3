// internal/infrastructure/api/pricing/client.go
package pricing

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

	"bsc-trading-assistant-bot/internal/core/trading"
	rediscache "bsc-trading-assistant-bot/internal/infrastructure/cache/redis"
	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"
)

// ============================================
// DEXSCREENER CLIENT
// ============================================

// Client - клиент ценового API в формате DexScreener
type Client struct {
	httpClient *http.Client
	cache      *rediscache.Cache
	baseURL    string
	cacheTTL   time.Duration

	mu          sync.Mutex
	lastRequest time.Time
	rateLimit   time.Duration
}

var _ trading.PriceProvider = (*Client)(nil)

// NewClient создает ценовой клиент. cache может быть nil, тогда каждое
// обращение уходит в API напрямую.
func NewClient(cfg *config.Config, cache *rediscache.Cache) *Client {
	timeout := cfg.Pricing.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:       cache,
		baseURL:     strings.TrimRight(cfg.Pricing.BaseURL, "/"),
		cacheTTL:    cfg.Pricing.CacheTTL,
		rateLimit:   200 * time.Millisecond,
		lastRequest: time.Now().Add(-200 * time.Millisecond),
	}
}

// waitForRateLimit ждет, если нужно соблюдать rate limit
func (c *Client) waitForRateLimit() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.rateLimit {
		sleepTime := c.rateLimit - elapsed
		c.lastRequest = time.Now().Add(sleepTime)
		c.mu.Unlock()
		time.Sleep(sleepTime)
		return
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// sendRequest отправляет GET-запрос к API
func (c *Client) sendRequest(ctx context.Context, endpoint string) ([]byte, error) {
	c.waitForRateLimit()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "BSCTradingAssistantBot/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// pairData - торговая пара в ответе API
type pairData struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceNative string `json:"priceNative"`
	PriceUsd    string `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// fetchPairs запрашивает все пары токена и фильтрует по сети
func (c *Client) fetchPairs(ctx context.Context, chainID, tokenAddress string) ([]pairData, error) {
	body, err := c.sendRequest(ctx, "/latest/dex/tokens/"+tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get token pairs: %w", err)
	}

	var response struct {
		Pairs []pairData `json:"pairs"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse pairs response: %w", err)
	}

	slug := chainSlug(chainID)
	var pairs []pairData
	for _, pair := range response.Pairs {
		if pair.ChainID != slug {
			continue
		}
		if !strings.EqualFold(pair.BaseToken.Address, tokenAddress) {
			continue
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

// bestPair выбирает пару с наибольшей ликвидностью
func bestPair(pairs []pairData) *pairData {
	var best *pairData
	for i := range pairs {
		if best == nil || pairs[i].Liquidity.USD > best.Liquidity.USD {
			best = &pairs[i]
		}
	}
	return best
}

// TokenPrice возвращает котировку токена. Свежие котировки отдаются из кэша.
func (c *Client) TokenPrice(ctx context.Context, chainID, tokenAddress string) (*trading.TokenPrice, error) {
	if c.cache != nil {
		var cached trading.TokenPrice
		found, err := c.cache.GetTokenQuote(ctx, chainID, tokenAddress, &cached)
		if err != nil {
			logger.Warn("⚠️ Ошибка чтения котировки из кэша: %v", err)
		}
		if found {
			logger.Debug("📊 Котировка %s из кэша: $%.6f", cached.Symbol, cached.PriceUSD)
			return &cached, nil
		}
	}

	pairs, err := c.fetchPairs(ctx, chainID, tokenAddress)
	if err != nil {
		return nil, err
	}

	pair := bestPair(pairs)
	if pair == nil {
		return nil, fmt.Errorf("no market data for token %s on %s", tokenAddress, chainID)
	}

	priceUSD, err := strconv.ParseFloat(pair.PriceUsd, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", pair.PriceUsd, err)
	}

	priceNative := 0.0
	if pair.PriceNative != "" {
		priceNative, err = strconv.ParseFloat(pair.PriceNative, 64)
		if err != nil {
			logger.Warn("⚠️ Ошибка парсинга нативной цены %q: %v", pair.PriceNative, err)
			priceNative = 0
		}
	}

	price := &trading.TokenPrice{
		ChainID:      chainID,
		Address:      pair.BaseToken.Address,
		Symbol:       pair.BaseToken.Symbol,
		PriceUSD:     priceUSD,
		PriceNative:  priceNative,
		LiquidityUSD: pair.Liquidity.USD,
		Volume24h:    pair.Volume.H24,
		Change24h:    pair.PriceChange.H24,
		UpdatedAt:    time.Now(),
	}

	if c.cache != nil {
		if err := c.cache.SetTokenQuote(ctx, price, chainID, tokenAddress, c.cacheTTL); err != nil {
			logger.Warn("⚠️ Ошибка записи котировки в кэш: %v", err)
		}
	}

	logger.Debug("📊 Котировка %s: $%.6f (ликвидность $%.0f)",
		price.Symbol, price.PriceUSD, price.LiquidityUSD)
	return price, nil
}

// TokenMetadata возвращает справочные данные токена
func (c *Client) TokenMetadata(ctx context.Context, chainID, tokenAddress string) (*trading.TokenMetadata, error) {
	pairs, err := c.fetchPairs(ctx, chainID, tokenAddress)
	if err != nil {
		return nil, err
	}

	pair := bestPair(pairs)
	if pair == nil {
		return nil, fmt.Errorf("no market data for token %s on %s", tokenAddress, chainID)
	}

	return &trading.TokenMetadata{
		ChainID: chainID,
		Address: pair.BaseToken.Address,
		Symbol:  pair.BaseToken.Symbol,
		Name:    pair.BaseToken.Name,
		// API не отдает decimals, BEP-20 токены практически всегда 18
		Decimals: 18,
	}, nil
}

// chainSlug переводит идентификатор сети CAIP-2 в имя сети ценового API
func chainSlug(chainID string) string {
	switch chainID {
	case "eip155:56", "56", "bsc":
		return "bsc"
	case "eip155:1", "1", "ethereum":
		return "ethereum"
	default:
		return chainID
	}
}
