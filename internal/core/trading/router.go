// internal/core/trading/router.go
package trading

import (
	"context"
	"time"
)

// QuoteRequest - запрос котировки обмена.
// Суммы передаются десятичными строками в wei.
type QuoteRequest struct {
	ChainID     string `json:"chain_id"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	SlippageBps int    `json:"slippage_bps"`
}

// Quote - котировка обмена от роутера
type Quote struct {
	AmountOut    string    `json:"amount_out"`
	MinAmountOut string    `json:"min_amount_out"` // с учетом проскальзывания
	Route        []string  `json:"route"`          // адреса токенов по пути обмена
	PriceImpact  float64   `json:"price_impact"`
	GasEstimate  string    `json:"gas_estimate"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SwapTransaction - неподписанная транзакция обмена, готовая к отправке
// на подпись в кошелек пользователя
type SwapTransaction struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

// SwapRouter - роутер обменов. Реализация с алгоритмом маршрутизации
// подключается снаружи.
type SwapRouter interface {
	// Quote возвращает котировку для запрошенного обмена
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)

	// BuildSwapTransaction собирает транзакцию обмена для указанного получателя
	BuildSwapTransaction(ctx context.Context, req QuoteRequest, recipient string) (*SwapTransaction, error)
}
