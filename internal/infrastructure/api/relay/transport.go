// internal/infrastructure/api/relay/transport.go
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"bsc-trading-assistant-bot/pkg/logger"
)

const (
	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 60 * time.Second
	respondTimeout    = 5 * time.Second
)

// transport держит websocket-подключение к relay-серверу: автоматическое
// переподключение с нарастающей задержкой, корреляция запрос-ответ по id,
// доставка входящих публикаций наверх.
type transport struct {
	url          string
	dialTimeout  time.Duration
	pingInterval time.Duration

	// onMessage вызывается на своей горутине: обработчик публикует
	// ответы через этот же транспорт, синхронный вызов заклинил бы
	// цикл чтения
	onMessage   func(subscriptionParams)
	onReconnect func()

	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]chan *rpcResponse

	connMu sync.RWMutex
	conn   *websocket.Conn

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newTransport(url string, dialTimeout, pingInterval time.Duration, onMessage func(subscriptionParams), onReconnect func()) *transport {
	return &transport{
		url:          url,
		dialTimeout:  dialTimeout,
		pingInterval: pingInterval,
		onMessage:    onMessage,
		onReconnect:  onReconnect,
		pending:      make(map[int64]chan *rpcResponse),
		stopCh:       make(chan struct{}),
	}
}

// start выполняет первое подключение синхронно: если relay недоступен,
// инициализация клиента должна провалиться сразу, а не зависнуть в ретраях
func (t *transport) start(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("ошибка подключения к relay: %w", err)
	}
	t.setConn(conn)
	logger.Info("✅ Подключение к relay установлено: %s", t.url)

	t.wg.Add(1)
	go t.supervise(conn)

	return nil
}

func (t *transport) stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	t.wg.Wait()
}

func (t *transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// supervise гоняет цикл чтения текущего соединения и переподключается
// после обрыва, удваивая паузу между попытками
func (t *transport) supervise(first *websocket.Conn) {
	defer t.wg.Done()

	conn := first
	for {
		err := t.runConnection(conn)
		t.clearConn()
		if err != nil {
			logger.Error("❌ Соединение с relay оборвано: %v", err)
		}

		conn = t.redial()
		if conn == nil {
			return
		}

		t.setConn(conn)
		logger.Info("🔄 Соединение с relay восстановлено")
		if t.onReconnect != nil {
			go t.onReconnect()
		}
	}
}

// redial пытается подключиться заново, пока не получится или пока
// транспорт не остановят. nil означает остановку.
func (t *transport) redial() *websocket.Conn {
	retryDelay := initialRetryDelay

	for {
		select {
		case <-t.stopCh:
			return nil
		case <-time.After(retryDelay):
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			logger.Warn("⚠️ Повторное подключение к relay не удалось: %v", err)
			retryDelay = minDuration(retryDelay*2, maxRetryDelay)
			continue
		}
		return conn
	}
}

func (t *transport) runConnection(conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Мост остановки: закрытие stopCh снимает блокировку чтения
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer conn.CloseNow()

	pingStop := make(chan struct{})
	defer close(pingStop)
	go t.pingLoop(ctx, conn, pingStop)

	for {
		var frame rpcFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			select {
			case <-t.stopCh:
				return nil
			default:
				return fmt.Errorf("ошибка чтения relay: %w", err)
			}
		}
		t.handleFrame(&frame)
	}
}

func (t *transport) pingLoop(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				logger.Error("❌ Ошибка отправки ping relay: %v", err)
				return
			}
			logger.Debug("🏓 Ping relay отправлен")
		}
	}
}

func (t *transport) handleFrame(frame *rpcFrame) {
	if frame.Method == methodSubscription {
		var params subscriptionParams
		if err := jsonCodec.Unmarshal(frame.Params, &params); err != nil {
			logger.Warn("⚠️ Неразборчивое сообщение подписки: %v", err)
			return
		}
		go t.acknowledge(frame.ID)
		go t.onMessage(params)
		return
	}

	t.pendingMu.Lock()
	waiter, ok := t.pending[frame.ID]
	if ok {
		delete(t.pending, frame.ID)
	}
	t.pendingMu.Unlock()

	if !ok {
		logger.Debug("Ответ relay без ожидающего запроса: id=%d", frame.ID)
		return
	}

	waiter <- &rpcResponse{
		ID:      frame.ID,
		JSONRPC: frame.JSONRPC,
		Result:  frame.Result,
		Error:   frame.Error,
	}
}

// acknowledge подтверждает relay доставку подписочного сообщения
func (t *transport) acknowledge(id int64) {
	conn := t.currentConn()
	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()

	result, _ := jsonCodec.Marshal(true)
	resp := rpcResponse{ID: id, JSONRPC: "2.0", Result: result}
	if err := wsjson.Write(ctx, conn, resp); err != nil {
		logger.Debug("Не удалось подтвердить доставку: %v", err)
	}
}

// request отправляет JSON-RPC запрос и ждет ответа с тем же id
func (t *transport) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	conn := t.currentConn()
	if conn == nil {
		return nil, ErrNotConnected
	}

	id := atomic.AddInt64(&t.nextID, 1)
	waiter := make(chan *rpcResponse, 1)

	t.pendingMu.Lock()
	t.pending[id] = waiter
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	req := rpcRequest{ID: id, JSONRPC: "2.0", Method: method, Params: params}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return nil, fmt.Errorf("ошибка отправки %s: %w", method, err)
	}

	select {
	case resp := <-waiter:
		if resp == nil {
			return nil, ErrNotConnected
		}
		if resp.Error != nil {
			return nil, &RPCError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RequestTimeoutError{Method: method}
		}
		return nil, ctx.Err()
	case <-t.stopCh:
		return nil, ErrClosed
	}
}

func (t *transport) setConn(conn *websocket.Conn) {
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
}

// clearConn сбрасывает соединение и будит всех ожидающих ответа:
// на новом соединении их ответы уже не придут
func (t *transport) clearConn() {
	t.connMu.Lock()
	t.conn = nil
	t.connMu.Unlock()

	t.pendingMu.Lock()
	for id, waiter := range t.pending {
		close(waiter)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

func (t *transport) currentConn() *websocket.Conn {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn
}

func (t *transport) isConnected() bool {
	return t.currentConn() != nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
