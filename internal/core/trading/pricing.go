// internal/core/trading/pricing.go
package trading

import (
	"context"
	"time"
)

// TokenPrice - рыночная котировка токена
type TokenPrice struct {
	ChainID      string    `json:"chain_id"`
	Address      string    `json:"address"`
	Symbol       string    `json:"symbol"`
	PriceUSD     float64   `json:"price_usd"`
	PriceNative  float64   `json:"price_native"` // в BNB
	LiquidityUSD float64   `json:"liquidity_usd"`
	Volume24h    float64   `json:"volume_24h"`
	Change24h    float64   `json:"change_24h"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenMetadata - справочные данные токена
type TokenMetadata struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// PriceProvider - источник котировок и метаданных токенов
type PriceProvider interface {
	// TokenPrice возвращает текущую котировку токена
	TokenPrice(ctx context.Context, chainID, tokenAddress string) (*TokenPrice, error)

	// TokenMetadata возвращает справочные данные токена
	TokenMetadata(ctx context.Context, chainID, tokenAddress string) (*TokenMetadata, error)
}
