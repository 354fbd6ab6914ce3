// internal/core/trading/signer.go
package trading

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// Методы JSON-RPC, исполняемые кошельком на стороне пользователя
const (
	methodSendTransaction = "eth_sendTransaction"
	methodPersonalSign    = "personal_sign"
	methodSignTypedData   = "eth_signTypedData_v4"
)

// SessionSource отдает установленную сессию пользователя для удаленных запросов
type SessionSource interface {
	Active(userID int64) (walletsession.ActiveSession, error)
}

// TransactionRequest - транзакция в формате eth_sendTransaction
type TransactionRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	Gas      string `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
}

// RemoteSigner - подпись через кошелек пользователя: запросы уходят по
// установленной relay-сессии, подтверждение происходит на устройстве
type RemoteSigner struct {
	sessions SessionSource
}

// NewRemoteSigner создает удаленный подписыватель
func NewRemoteSigner(sessions SessionSource) *RemoteSigner {
	return &RemoteSigner{sessions: sessions}
}

// SendTransaction отправляет транзакцию на подпись в кошелек и возвращает хэш
func (s *RemoteSigner) SendTransaction(ctx context.Context, userID int64, tx TransactionRequest) (string, error) {
	sess, err := s.sessions.Active(userID)
	if err != nil {
		return "", fmt.Errorf("wallet pairing required: %w", err)
	}

	if tx.From == "" {
		tx.From = sess.Address
	}

	raw, err := sess.Client.Request(ctx, sess.Topic, methodSendTransaction, []interface{}{tx})
	if err != nil {
		return "", fmt.Errorf("eth_sendTransaction failed: %w", err)
	}

	return decodeStringResult(raw)
}

// SignMessage подписывает произвольное сообщение (personal_sign)
func (s *RemoteSigner) SignMessage(ctx context.Context, userID int64, message string) (string, error) {
	sess, err := s.sessions.Active(userID)
	if err != nil {
		return "", fmt.Errorf("wallet pairing required: %w", err)
	}

	data := "0x" + hex.EncodeToString([]byte(message))
	raw, err := sess.Client.Request(ctx, sess.Topic, methodPersonalSign, []interface{}{data, sess.Address})
	if err != nil {
		return "", fmt.Errorf("personal_sign failed: %w", err)
	}

	return decodeStringResult(raw)
}

// SignTypedData подписывает типизированные данные EIP-712
func (s *RemoteSigner) SignTypedData(ctx context.Context, userID int64, typedData json.RawMessage) (string, error) {
	sess, err := s.sessions.Active(userID)
	if err != nil {
		return "", fmt.Errorf("wallet pairing required: %w", err)
	}

	raw, err := sess.Client.Request(ctx, sess.Topic, methodSignTypedData, []interface{}{sess.Address, string(typedData)})
	if err != nil {
		return "", fmt.Errorf("eth_signTypedData_v4 failed: %w", err)
	}

	return decodeStringResult(raw)
}

// decodeStringResult разбирает строковый результат JSON-RPC (хэш или подпись)
func decodeStringResult(raw json.RawMessage) (string, error) {
	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unexpected wallet response: %w", err)
	}
	if result == "" {
		return "", fmt.Errorf("empty wallet response")
	}
	return result, nil
}
