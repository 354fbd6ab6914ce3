// internal/infrastructure/api/relay/codec.go
package relay

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// jsonCodec совместим со стандартной библиотекой: protocol-уровень гоняет
// много мелких конвертов, поэтому кодек быстрый
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ RELAY RPC ============
//
// Транспортный уровень говорит с relay-сервером по JSON-RPC 2.0:
// irn_subscribe / irn_unsubscribe / irn_publish наружу,
// irn_subscription входящим потоком.

const (
	methodSubscribe    = "irn_subscribe"
	methodUnsubscribe  = "irn_unsubscribe"
	methodPublish      = "irn_publish"
	methodSubscription = "irn_subscription"
)

// rpcFrame - входящий кадр до классификации: запрос несет Method,
// ответ несет Result или Error
type rpcFrame struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcRequest struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscribeParams struct {
	Topic string `json:"topic"`
}

type unsubscribeParams struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

type publishParams struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	TTL     int64  `json:"ttl"`
	Tag     int    `json:"tag"`
}

type subscriptionData struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

type subscriptionParams struct {
	ID   string           `json:"id"`
	Data subscriptionData `json:"data"`
}

// ============ SESSION RPC ============
//
// Внутри запечатанных конвертов ходит второй слой JSON-RPC: переговоры
// пейринга и служебные запросы установленной сессии.

const (
	methodSessionPropose = "wc_sessionPropose"
	methodSessionApprove = "wc_sessionApprove"
	methodSessionReject  = "wc_sessionReject"
	methodSessionDelete  = "wc_sessionDelete"
	methodSessionUpdate  = "wc_sessionUpdate"
	methodSessionPing    = "wc_sessionPing"
	methodSessionExtend  = "wc_sessionExtend"
)

// Теги публикаций: relay группирует по ним сообщения на своей стороне
const (
	tagSessionPropose = 1100
	tagSessionSettle  = 1102
	tagSessionUpdate  = 1104
	tagSessionExtend  = 1106
	tagSessionDelete  = 1112
	tagSessionPing    = 1114
	tagSessionRequest = 1108
)

// Время жизни публикаций на relay, секунды
const (
	ttlProposal = int64(300)
	ttlSession  = int64(86400)
)

// appMetadata описывает инициатора пейринга для экрана подтверждения кошелька
type appMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// proposeBody уходит кошельку при старте пейринга. Fingerprint
// перекочевывает в approveBody и сверяется при ответе.
type proposeBody struct {
	ProposerKey string      `json:"proposerKey"`
	Metadata    appMetadata `json:"metadata"`
	ChainID     string      `json:"chainId"`
	Methods     []string    `json:"methods"`
	Events      []string    `json:"events"`
	Fingerprint string      `json:"fingerprint"`
}

// approveBody приходит от кошелька при подтверждении пейринга
type approveBody struct {
	ResponderKey string   `json:"responderKey"`
	Accounts     []string `json:"accounts"`
	Expiry       int64    `json:"expiry"`
	Fingerprint  string   `json:"fingerprint"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type deleteBody struct {
	Reason string `json:"reason"`
}

type updateBody struct {
	Accounts []string `json:"accounts"`
}

type extendBody struct {
	Expiry int64 `json:"expiry"`
}

// sealedEnvelope - произвольный session-RPC кадр до классификации
type sealedEnvelope struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

func (e *sealedEnvelope) isRequest() bool { return e.Method != "" }
