// internal/infrastructure/api/relay/client.go
package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/pkg/logger"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultPingInterval   = 20 * time.Second
	defaultPairingTTL     = 5 * time.Minute
	defaultSessionTTL     = 7 * 24 * time.Hour

	sweepInterval = 30 * time.Second
)

// Config - настройки relay-клиента
type Config struct {
	URL       string
	ProjectID string

	// Метаданные приложения для экрана подтверждения в кошельке
	AppName        string
	AppDescription string
	AppURL         string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
	PingInterval   time.Duration
	PairingTTL     time.Duration // время жизни неподтвержденного предложения
	SessionTTL     time.Duration // срок сессии при установлении и продлении
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PairingTTL <= 0 {
		c.PairingTTL = defaultPairingTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	return c
}

// Client - протокольный клиент relay-сети: пейринг с кошельком, запечатанные
// session-RPC, реестр установленных сессий. Реализует контракт
// walletsession.ProtocolClient и живет под брокером в единственном экземпляре.
type Client struct {
	cfg     Config
	storage Storage

	tr       *transport
	sessions *sessionLedger
	pairings *pairingLedger

	rpcID int64

	callsMu sync.Mutex
	calls   map[int64]chan *sealedEnvelope

	handlersMu sync.RWMutex
	handlers   map[walletsession.EventKind]walletsession.EventHandler

	subsMu sync.Mutex
	subs   map[string]string // топик -> идентификатор подписки relay

	reconnectHook func()

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ walletsession.ProtocolClient = (*Client)(nil)

func New(cfg Config, storage Storage) *Client {
	c := &Client{
		cfg:      cfg.withDefaults(),
		storage:  storage,
		sessions: newSessionLedger(),
		pairings: newPairingLedger(),
		calls:    make(map[int64]chan *sealedEnvelope),
		handlers: make(map[walletsession.EventKind]walletsession.EventHandler),
		subs:     make(map[string]string),
		stopCh:   make(chan struct{}),
	}
	c.tr = newTransport(c.dialURL(), c.cfg.DialTimeout, c.cfg.PingInterval, c.handleInbound, c.resubscribeAll)
	return c
}

func (c *Client) dialURL() string {
	if c.cfg.ProjectID == "" {
		return c.cfg.URL
	}
	sep := "?"
	if strings.Contains(c.cfg.URL, "?") {
		sep = "&"
	}
	return c.cfg.URL + sep + "projectId=" + url.QueryEscape(c.cfg.ProjectID)
}

// Init поднимает транспорт, восстанавливает реестр сессий из хранилища
// и возобновляет подписки на их топики
func (c *Client) Init(ctx context.Context) error {
	if err := c.tr.start(ctx); err != nil {
		return err
	}

	restored, err := c.loadSessions()
	if err != nil {
		c.tr.stop()
		return err
	}

	for _, entry := range restored {
		if err := c.subscribe(ctx, entry.Topic); err != nil {
			logger.Warn("⚠️ Подписка на топик %s не удалась: %v", shortTopic(entry.Topic), err)
		}
	}

	c.wg.Add(1)
	go c.sweepLoop()

	logger.Info("✅ Relay-клиент готов: %d сессий в реестре", len(restored))
	return nil
}

// loadSessions читает сохраненные сессии из Storage в реестр.
// Поврежденные записи удаляются на месте.
func (c *Client) loadSessions() ([]*sessionEntry, error) {
	keys, err := c.storage.Keys(storageSessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения реестра сессий: %w", err)
	}

	var entries []*sessionEntry
	for _, key := range keys {
		blob, err := c.storage.Get(key)
		if err != nil {
			continue
		}

		var entry sessionEntry
		if err := jsonCodec.Unmarshal(blob, &entry); err != nil || entry.Topic == "" || entry.SymKey == "" {
			logger.Warn("⚠️ Поврежденная запись %s удалена из хранилища", key)
			_ = c.storage.Delete(key)
			continue
		}

		c.sessions.put(&entry)
		entries = append(entries, &entry)
	}
	return entries, nil
}

// ============ PROTOCOL CLIENT ============

// Connect публикует предложение пейринга на свежем топике и возвращает
// URI для кошелька вместе с каналом подтверждения
func (c *Client) Connect(ctx context.Context, proposal walletsession.Proposal) (*walletsession.PairingRequest, error) {
	keys, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	symKey, err := newSymKey()
	if err != nil {
		return nil, err
	}
	topic := topicFromKey(symKey)

	fingerprint, err := proposalFingerprint(proposal, keys.publicHex())
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.subscribe(callCtx, topic); err != nil {
		return nil, fmt.Errorf("ошибка подписки на пейринг-топик: %w", err)
	}

	body := proposeBody{
		ProposerKey: keys.publicHex(),
		Metadata:    c.metadata(),
		ChainID:     proposal.ChainID,
		Methods:     proposal.Methods,
		Events:      proposal.Events,
		Fingerprint: fingerprint,
	}

	sealed, id, err := c.sealRequestEnvelope(symKey, methodSessionPropose, body)
	if err != nil {
		c.unsubscribeQuiet(topic)
		return nil, err
	}

	if err := c.publish(callCtx, topic, sealed, ttlProposal, tagSessionPropose); err != nil {
		c.unsubscribeQuiet(topic)
		return nil, fmt.Errorf("ошибка публикации предложения: %w", err)
	}

	approval := make(chan walletsession.ApprovalResult, 1)
	c.pairings.put(&pendingPairing{
		topic:       topic,
		symKey:      symKey,
		keys:        keys,
		fingerprint: fingerprint,
		proposalID:  id,
		approval:    approval,
		expiresAt:   time.Now().Add(c.cfg.PairingTTL),
	})

	logger.Info("📡 Предложение пейринга опубликовано: топик %s", shortTopic(topic))
	return &walletsession.PairingRequest{URI: BuildPairingURI(topic, symKey), Approval: approval}, nil
}

// Sessions возвращает снимок реестра живых сессий
func (c *Client) Sessions() []walletsession.Session {
	entries := c.sessions.all()
	out := make([]walletsession.Session, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.toSession())
	}
	return out
}

// Disconnect завершает сессию: уведомляет кошелек и снимает ее с учета.
// Уведомление best-effort, сессия сносится в любом случае.
func (c *Client) Disconnect(ctx context.Context, topic string, reason string) error {
	entry, ok := c.sessions.get(topic)
	if !ok {
		return &TopicError{Op: "disconnect", Topic: topic}
	}

	if key, err := entry.key(); err == nil {
		if sealed, _, sealErr := c.sealRequestEnvelope(key, methodSessionDelete, deleteBody{Reason: reason}); sealErr == nil {
			callCtx, cancel := c.opCtx(ctx)
			if pubErr := c.publish(callCtx, topic, sealed, ttlProposal, tagSessionDelete); pubErr != nil {
				logger.Debug("Кошелек не уведомлен о завершении %s: %v", shortTopic(topic), pubErr)
			}
			cancel()
		}
	}

	c.dropSession(topic)
	logger.Info("🔌 Сессия %s завершена: %s", shortTopic(topic), reason)
	return nil
}

// Ping отправляет probe живости кошельку по установленной сессии
func (c *Client) Ping(ctx context.Context, topic string) error {
	_, err := c.sessionCall(ctx, topic, methodSessionPing, struct{}{}, tagSessionPing)
	return err
}

// Extend продлевает сессию на SessionTTL от текущего момента
func (c *Client) Extend(ctx context.Context, topic string) error {
	expiry := time.Now().Add(c.cfg.SessionTTL).Unix()

	if _, err := c.sessionCall(ctx, topic, methodSessionExtend, extendBody{Expiry: expiry}, tagSessionExtend); err != nil {
		return err
	}

	if c.sessions.setExpiry(topic, expiry) {
		if entry, ok := c.sessions.get(topic); ok {
			if err := c.persistSession(entry); err != nil {
				logger.Warn("⚠️ Продление сессии %s не записано: %v", shortTopic(topic), err)
			}
		}
	}
	return nil
}

// Request выполняет JSON-RPC вызов к кошельку поверх установленной сессии.
// Этим путем ходят запросы подписи транзакций.
func (c *Client) Request(ctx context.Context, topic string, method string, params interface{}) (json.RawMessage, error) {
	return c.sessionCall(ctx, topic, method, params, tagSessionRequest)
}

// SessionMeta читает сериализованную запись сессии из хранилища клиента
func (c *Client) SessionMeta(topic string) ([]byte, error) {
	return c.storage.Get(sessionKeyFor(topic))
}

// PurgeTopic удаляет все данные, привязанные к топику. Отсутствие
// данных ошибкой не считается.
func (c *Client) PurgeTopic(topic string) error {
	c.sessions.remove(topic)
	return c.storage.Delete(sessionKeyFor(topic))
}

func (c *Client) On(kind walletsession.EventKind, handler walletsession.EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[kind] = handler
}

func (c *Client) Off(kind walletsession.EventKind) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers, kind)
}

// Close останавливает фоновые циклы и транспорт
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.tr.stop()

	logger.Info("🛑 Relay-клиент остановлен")
	return nil
}

// ============ ВХОДЯЩИЕ СООБЩЕНИЯ ============

// handleInbound маршрутизирует публикацию с relay по ее топику.
// Вызывается транспортом на отдельной горутине.
func (c *Client) handleInbound(msg subscriptionParams) {
	topic := msg.Data.Topic

	if pairing, ok := c.pairings.get(topic); ok {
		c.handlePairingMessage(pairing, msg.Data.Message)
		return
	}

	if entry, ok := c.sessions.get(topic); ok {
		c.handleSessionMessage(entry, msg.Data.Message)
		return
	}

	logger.Debug("Сообщение по неизвестному топику %s отброшено", shortTopic(topic))
}

func (c *Client) handlePairingMessage(p *pendingPairing, message string) {
	plain, err := open(p.symKey, message)
	if err != nil {
		logger.Warn("⚠️ Нечитаемое сообщение пейринга %s: %v", shortTopic(p.topic), err)
		return
	}

	var env sealedEnvelope
	if err := jsonCodec.Unmarshal(plain, &env); err != nil {
		logger.Warn("⚠️ Неразборчивый конверт пейринга %s: %v", shortTopic(p.topic), err)
		return
	}

	if !env.isRequest() {
		// подтверждение доставки нашего предложения, решения в нем нет
		if env.ID == p.proposalID {
			logger.Debug("Ack предложения по топику %s", shortTopic(p.topic))
		}
		return
	}

	switch env.Method {
	case methodSessionApprove:
		var body approveBody
		if err := jsonCodec.Unmarshal(env.Params, &body); err != nil {
			logger.Warn("⚠️ Неразборчивое подтверждение пейринга: %v", err)
			return
		}
		c.settlePairing(p.topic, &body, env.ID)

	case methodSessionReject:
		var body rejectBody
		_ = jsonCodec.Unmarshal(env.Params, &body)

		taken, ok := c.pairings.take(p.topic)
		if !ok {
			return
		}
		c.unsubscribeQuiet(taken.topic)

		reason := body.Reason
		if reason == "" {
			reason = "wallet declined"
		}
		taken.approval <- walletsession.ApprovalResult{Err: fmt.Errorf("relay: pairing rejected: %s", reason)}
		logger.Info("❌ Пейринг %s отклонен кошельком", shortTopic(p.topic))

	default:
		logger.Debug("Неожиданный метод %s на пейринг-топике %s", env.Method, shortTopic(p.topic))
	}
}

// settlePairing завершает пейринг по подтверждению кошелька: выводит
// сессионный ключ, подписывается на сессионный топик и доставляет
// результат ожидающему supervisor-у
func (c *Client) settlePairing(pairingTopic string, body *approveBody, requestID int64) {
	// take выдает пейринг ровно одному: ответ кошелька и сторож
	// истечения не продублируют результат
	taken, ok := c.pairings.take(pairingTopic)
	if !ok {
		return
	}
	c.unsubscribeQuiet(taken.topic)

	if body.Fingerprint != taken.fingerprint {
		taken.approval <- walletsession.ApprovalResult{Err: ErrFingerprintMismatch}
		logger.Warn("⚠️ Отпечаток предложения %s не совпал", shortTopic(pairingTopic))
		return
	}

	sessionKey, err := taken.keys.sessionKey(body.ResponderKey)
	if err != nil {
		taken.approval <- walletsession.ApprovalResult{Err: fmt.Errorf("relay: session settlement failed: %w", err)}
		return
	}
	sessionTopic := topicFromKey(sessionKey)

	expiry := body.Expiry
	if expiry == 0 {
		expiry = time.Now().Add(c.cfg.SessionTTL).Unix()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	if err := c.subscribe(ctx, sessionTopic); err != nil {
		taken.approval <- walletsession.ApprovalResult{Err: fmt.Errorf("relay: subscribe session topic: %w", err)}
		return
	}

	entry := &sessionEntry{
		Topic:    sessionTopic,
		SymKey:   hex.EncodeToString(sessionKey),
		Accounts: body.Accounts,
		Expiry:   expiry,
	}
	c.sessions.put(entry)
	if err := c.persistSession(entry); err != nil {
		logger.Warn("⚠️ Сессия %s не записана в хранилище: %v", shortTopic(sessionTopic), err)
	}

	go c.respondSealed(taken.symKey, taken.topic, requestID, tagSessionSettle)

	taken.approval <- walletsession.ApprovalResult{Session: entry.toSession()}
	logger.Info("✅ Пейринг завершен: сессия %s", shortTopic(sessionTopic))
}

func (c *Client) handleSessionMessage(entry *sessionEntry, message string) {
	key, err := entry.key()
	if err != nil {
		logger.Warn("⚠️ %v", err)
		return
	}

	plain, err := open(key, message)
	if err != nil {
		logger.Warn("⚠️ Нечитаемое сообщение сессии %s: %v", shortTopic(entry.Topic), err)
		return
	}

	var env sealedEnvelope
	if err := jsonCodec.Unmarshal(plain, &env); err != nil {
		logger.Warn("⚠️ Неразборчивый конверт сессии %s: %v", shortTopic(entry.Topic), err)
		return
	}

	if env.isRequest() {
		c.handleSessionRequest(entry, key, &env)
		return
	}

	// ответ на наш запрос: Ping/Extend/Request ждут его по id
	c.callsMu.Lock()
	waiter, ok := c.calls[env.ID]
	if ok {
		delete(c.calls, env.ID)
	}
	c.callsMu.Unlock()

	if !ok {
		logger.Debug("Ответ кошелька без ожидающего запроса: id=%d", env.ID)
		return
	}
	waiter <- &env
}

// handleSessionRequest обрабатывает запросы, инициированные кошельком
func (c *Client) handleSessionRequest(entry *sessionEntry, key []byte, env *sealedEnvelope) {
	topic := entry.Topic

	switch env.Method {
	case methodSessionDelete:
		var body deleteBody
		_ = jsonCodec.Unmarshal(env.Params, &body)

		go c.respondSealed(key, topic, env.ID, tagSessionDelete)
		c.dropSession(topic)
		c.emit(walletsession.SessionDeleted{Topic: topic, Reason: body.Reason})
		logger.Info("🔌 Сессия %s завершена кошельком", shortTopic(topic))

	case methodSessionUpdate:
		var body updateBody
		if err := jsonCodec.Unmarshal(env.Params, &body); err != nil {
			logger.Warn("⚠️ Неразборчивый update по сессии %s: %v", shortTopic(topic), err)
			return
		}

		c.sessions.setAccounts(topic, body.Accounts)
		if updated, ok := c.sessions.get(topic); ok {
			if err := c.persistSession(updated); err != nil {
				logger.Warn("⚠️ Update сессии %s не записан: %v", shortTopic(topic), err)
			}
		}
		go c.respondSealed(key, topic, env.ID, tagSessionUpdate)
		c.emit(walletsession.SessionUpdated{Topic: topic, Accounts: body.Accounts})
		logger.Info("📋 Аккаунты сессии %s обновлены кошельком", shortTopic(topic))

	case methodSessionPing:
		go c.respondSealed(key, topic, env.ID, tagSessionPing)
		logger.Debug("🏓 Ping от кошелька по сессии %s", shortTopic(topic))

	case methodSessionExtend:
		var body extendBody
		if err := jsonCodec.Unmarshal(env.Params, &body); err == nil && body.Expiry > 0 {
			c.sessions.setExpiry(topic, body.Expiry)
			if updated, ok := c.sessions.get(topic); ok {
				if err := c.persistSession(updated); err != nil {
					logger.Warn("⚠️ Продление сессии %s не записано: %v", shortTopic(topic), err)
				}
			}
		}
		go c.respondSealed(key, topic, env.ID, tagSessionExtend)

	default:
		logger.Debug("Неизвестный метод %s по сессии %s", env.Method, shortTopic(topic))
	}
}

// ============ СЛУЖЕБНЫЕ ============

// sessionCall отправляет запечатанный запрос по сессии и ждет ответа кошелька
func (c *Client) sessionCall(ctx context.Context, topic string, method string, params interface{}, tag int) (json.RawMessage, error) {
	entry, ok := c.sessions.get(topic)
	if !ok {
		return nil, &TopicError{Op: method, Topic: topic}
	}

	key, err := entry.key()
	if err != nil {
		return nil, err
	}

	sealed, id, err := c.sealRequestEnvelope(key, method, params)
	if err != nil {
		return nil, err
	}

	waiter := make(chan *sealedEnvelope, 1)
	c.callsMu.Lock()
	c.calls[id] = waiter
	c.callsMu.Unlock()
	defer func() {
		c.callsMu.Lock()
		delete(c.calls, id)
		c.callsMu.Unlock()
	}()

	callCtx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.publish(callCtx, topic, sealed, ttlSession, tag); err != nil {
		return nil, fmt.Errorf("ошибка публикации %s: %w", method, err)
	}

	select {
	case resp := <-waiter:
		if resp.Error != nil {
			return nil, &RPCError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &RequestTimeoutError{Method: method}
		}
		return nil, callCtx.Err()
	case <-c.stopCh:
		return nil, ErrClosed
	}
}

func (c *Client) sealRequestEnvelope(key []byte, method string, params interface{}) (string, int64, error) {
	raw, err := jsonCodec.Marshal(params)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка сериализации %s: %w", method, err)
	}

	id := atomic.AddInt64(&c.rpcID, 1)
	env := sealedEnvelope{ID: id, JSONRPC: "2.0", Method: method, Params: raw}

	plain, err := jsonCodec.Marshal(&env)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка сериализации конверта: %w", err)
	}

	sealed, err := seal(key, plain)
	if err != nil {
		return "", 0, err
	}
	return sealed, id, nil
}

// respondSealed подтверждает кошельку обработку его запроса
func (c *Client) respondSealed(key []byte, topic string, id int64, tag int) {
	result, _ := jsonCodec.Marshal(true)
	env := sealedEnvelope{ID: id, JSONRPC: "2.0", Result: result}

	plain, err := jsonCodec.Marshal(&env)
	if err != nil {
		return
	}

	sealed, err := seal(key, plain)
	if err != nil {
		logger.Debug("Подтверждение по %s не запечатано: %v", shortTopic(topic), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	if err := c.publish(ctx, topic, sealed, ttlProposal, tag); err != nil {
		logger.Debug("Подтверждение по %s не доставлено: %v", shortTopic(topic), err)
	}
}

// dropSession снимает сессию с учета: подписка, реестр, хранилище
func (c *Client) dropSession(topic string) {
	c.unsubscribeQuiet(topic)
	c.sessions.remove(topic)
	if err := c.storage.Delete(sessionKeyFor(topic)); err != nil {
		logger.Debug("Запись сессии %s не удалена: %v", shortTopic(topic), err)
	}
}

func (c *Client) persistSession(entry *sessionEntry) error {
	blob, err := jsonCodec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	return c.storage.Set(sessionKeyFor(entry.Topic), blob)
}

func (c *Client) subscribe(ctx context.Context, topic string) error {
	result, err := c.tr.request(ctx, methodSubscribe, subscribeParams{Topic: topic})
	if err != nil {
		return err
	}

	var subID string
	if err := jsonCodec.Unmarshal(result, &subID); err != nil {
		return fmt.Errorf("ошибка разбора идентификатора подписки: %w", err)
	}

	c.subsMu.Lock()
	c.subs[topic] = subID
	c.subsMu.Unlock()
	return nil
}

func (c *Client) unsubscribeQuiet(topic string) {
	c.subsMu.Lock()
	subID, ok := c.subs[topic]
	delete(c.subs, topic)
	c.subsMu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	if _, err := c.tr.request(ctx, methodUnsubscribe, unsubscribeParams{Topic: topic, ID: subID}); err != nil {
		logger.Debug("Отписка от %s не удалась: %v", shortTopic(topic), err)
	}
}

func (c *Client) publish(ctx context.Context, topic string, message string, ttl int64, tag int) error {
	_, err := c.tr.request(ctx, methodPublish, publishParams{Topic: topic, Message: message, TTL: ttl, Tag: tag})
	return err
}

// SetReconnectHook регистрирует обратный вызов на переподключение транспорта.
// Выставляется до Init.
func (c *Client) SetReconnectHook(fn func()) {
	c.reconnectHook = fn
}

// resubscribeAll восстанавливает подписки после переподключения транспорта.
// Прежние идентификаторы подписок умерли вместе с соединением.
func (c *Client) resubscribeAll() {
	if c.reconnectHook != nil {
		c.reconnectHook()
	}

	c.subsMu.Lock()
	c.subs = make(map[string]string)
	c.subsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	count := 0
	for _, entry := range c.sessions.all() {
		if err := c.subscribe(ctx, entry.Topic); err != nil {
			logger.Warn("⚠️ Повторная подписка на %s не удалась: %v", shortTopic(entry.Topic), err)
			continue
		}
		count++
	}
	for _, topic := range c.pairings.topics() {
		if err := c.subscribe(ctx, topic); err != nil {
			logger.Warn("⚠️ Повторная подписка на %s не удалась: %v", shortTopic(topic), err)
			continue
		}
		count++
	}

	logger.Info("📡 Подписки восстановлены: %d топиков", count)
}

// emit доставляет событие подписчику на отдельной горутине: обработчики
// берут блокировки supervisor-ов и не должны тормозить цикл чтения
func (c *Client) emit(event walletsession.Event) {
	c.handlersMu.RLock()
	handler, ok := c.handlers[event.Kind()]
	c.handlersMu.RUnlock()

	if !ok {
		return
	}
	go handler(event)
}

func (c *Client) metadata() appMetadata {
	return appMetadata{
		Name:        c.cfg.AppName,
		Description: c.cfg.AppDescription,
		URL:         c.cfg.AppURL,
	}
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

// ConnectionStats - снимок состояния клиента для диагностики
type ConnectionStats struct {
	Connected bool `json:"connected"`
	Sessions  int  `json:"sessions"`
	Pairings  int  `json:"pairings"`
}

func (c *Client) Stats() ConnectionStats {
	return ConnectionStats{
		Connected: c.tr.isConnected(),
		Sessions:  len(c.sessions.all()),
		Pairings:  len(c.pairings.topics()),
	}
}

func shortTopic(topic string) string {
	if len(topic) > 16 {
		return topic[:16] + "…"
	}
	return topic
}
