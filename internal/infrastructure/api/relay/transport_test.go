// internal/infrastructure/api/relay/transport_test.go
package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// ============ ФЕЙКОВЫЙ RELAY-СЕРВЕР ============

// fakeRelay поднимает websocket-сервер, отвечающий на irn_subscribe,
// irn_unsubscribe и irn_publish. Публикации складываются в канал,
// push отправляет клиенту irn_subscription.
type fakeRelay struct {
	srv  *httptest.Server
	pubs chan publishParams

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]string
	nextSub int

	pushID int64
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()

	f := &fakeRelay{
		pubs: make(chan publishParams, 64),
		subs: make(map[string]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRelay) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	ctx := r.Context()
	for {
		var frame rpcFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		if frame.Method == "" {
			continue // подтверждение доставки от клиента
		}

		switch frame.Method {
		case methodSubscribe:
			var params subscribeParams
			_ = jsonCodec.Unmarshal(frame.Params, &params)

			f.mu.Lock()
			f.nextSub++
			subID := fmt.Sprintf("sub-%d", f.nextSub)
			f.subs[params.Topic] = subID
			f.mu.Unlock()
			f.respond(ctx, conn, frame.ID, subID)

		case methodUnsubscribe:
			var params unsubscribeParams
			_ = jsonCodec.Unmarshal(frame.Params, &params)

			f.mu.Lock()
			delete(f.subs, params.Topic)
			f.mu.Unlock()
			f.respond(ctx, conn, frame.ID, true)

		case methodPublish:
			var params publishParams
			_ = jsonCodec.Unmarshal(frame.Params, &params)

			select {
			case f.pubs <- params:
			default:
			}
			f.respond(ctx, conn, frame.ID, true)
		}
	}
}

func (f *fakeRelay) respond(ctx context.Context, conn *websocket.Conn, id int64, result interface{}) {
	raw, _ := jsonCodec.Marshal(result)
	_ = wsjson.Write(ctx, conn, rpcResponse{ID: id, JSONRPC: "2.0", Result: raw})
}

// push доставляет клиенту сообщение на топик, как это делает relay
func (f *fakeRelay) push(t *testing.T, topic, message string) {
	t.Helper()
	require.NoError(t, f.pushQuiet(topic, message))
}

func (f *fakeRelay) pushQuiet(topic, message string) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	id := atomic.AddInt64(&f.pushID, 1) + 1_000_000
	params, err := jsonCodec.Marshal(subscriptionParams{
		ID:   "sub-push",
		Data: subscriptionData{Topic: topic, Message: message},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, rpcFrame{ID: id, JSONRPC: "2.0", Method: methodSubscription, Params: params})
}

// nextPublishTag ждет публикацию с нужным тегом, пропуская остальные
func (f *fakeRelay) nextPublishTag(t *testing.T, tag int) publishParams {
	t.Helper()

	pub, ok := f.tryNextPublishTag(tag, 3*time.Second)
	if !ok {
		t.Fatalf("публикация с тегом %d не пришла", tag)
	}
	return pub
}

func (f *fakeRelay) tryNextPublishTag(tag int, timeout time.Duration) (publishParams, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case pub := <-f.pubs:
			if pub.Tag == tag {
				return pub, true
			}
		case <-deadline:
			return publishParams{}, false
		}
	}
}

func (f *fakeRelay) hasSub(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[topic]
	return ok
}

// ============ СИМУЛЯТОР КОШЕЛЬКА ============

// walletSim - встречная сторона пейринга: свои ключи и выведенный
// сессионный ключ, симметричный клиентскому
type walletSim struct {
	keys         *keyPair
	sessionKey   []byte
	sessionTopic string
}

// approvePairing разбирает опубликованное предложение и отвечает на него
// подтверждением от имени кошелька
func approvePairing(t *testing.T, f *fakeRelay, uri string, accounts []string, expiry int64) *walletSim {
	t.Helper()

	pairingTopic, symKey, err := ParsePairingURI(uri)
	require.NoError(t, err)

	pub := f.nextPublishTag(t, tagSessionPropose)
	require.Equal(t, pairingTopic, pub.Topic)

	plain, err := open(symKey, pub.Message)
	require.NoError(t, err)

	var env sealedEnvelope
	require.NoError(t, jsonCodec.Unmarshal(plain, &env))
	require.Equal(t, methodSessionPropose, env.Method)

	var proposal proposeBody
	require.NoError(t, jsonCodec.Unmarshal(env.Params, &proposal))
	require.NotEmpty(t, proposal.ProposerKey)
	require.NotEmpty(t, proposal.Fingerprint)

	wallet := &walletSim{}
	wallet.keys, err = newKeyPair()
	require.NoError(t, err)
	wallet.sessionKey, err = wallet.keys.sessionKey(proposal.ProposerKey)
	require.NoError(t, err)
	wallet.sessionTopic = topicFromKey(wallet.sessionKey)

	approve := approveBody{
		ResponderKey: wallet.keys.publicHex(),
		Accounts:     accounts,
		Expiry:       expiry,
		Fingerprint:  proposal.Fingerprint,
	}
	raw, err := jsonCodec.Marshal(approve)
	require.NoError(t, err)

	reply := sealedEnvelope{ID: 9001, JSONRPC: "2.0", Method: methodSessionApprove, Params: raw}
	replyPlain, err := jsonCodec.Marshal(&reply)
	require.NoError(t, err)

	sealed, err := seal(symKey, replyPlain)
	require.NoError(t, err)
	f.push(t, pairingTopic, sealed)

	return wallet
}

// answerSessionCall отвечает успехом на один запечатанный запрос клиента
func answerSessionCall(f *fakeRelay, wallet *walletSim, tag int) {
	pub, ok := f.tryNextPublishTag(tag, 3*time.Second)
	if !ok {
		return
	}

	plain, err := open(wallet.sessionKey, pub.Message)
	if err != nil {
		return
	}

	var env sealedEnvelope
	if jsonCodec.Unmarshal(plain, &env) != nil {
		return
	}

	result, _ := jsonCodec.Marshal(true)
	resp := sealedEnvelope{ID: env.ID, JSONRPC: "2.0", Result: result}
	respPlain, _ := jsonCodec.Marshal(&resp)

	sealed, err := seal(wallet.sessionKey, respPlain)
	if err != nil {
		return
	}
	_ = f.pushQuiet(pub.Topic, sealed)
}

func newRelayClient(t *testing.T, f *fakeRelay) *Client {
	t.Helper()

	client := New(Config{
		URL:            f.url(),
		ProjectID:      "test-project",
		AppName:        "bsc-trading-assistant",
		DialTimeout:    2 * time.Second,
		RequestTimeout: 2 * time.Second,
	}, NewMemoryStorage())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Init(ctx))

	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = client.Close(closeCtx)
	})
	return client
}

func establishSession(t *testing.T, f *fakeRelay, client *Client) *walletSim {
	t.Helper()

	pairing, err := client.Connect(context.Background(), walletsession.Proposal{
		ChainID: "eip155:56",
		Methods: []string{"eth_sendTransaction", "personal_sign"},
		Events:  []string{"accountsChanged"},
	})
	require.NoError(t, err)

	wallet := approvePairing(t, f, pairing.URI,
		[]string{"eip155:56:0xA11ce00000000000000000000000000000000001"},
		time.Now().Add(24*time.Hour).Unix())

	select {
	case result := <-pairing.Approval:
		require.NoError(t, result.Err)
	case <-time.After(3 * time.Second):
		t.Fatal("подтверждение пейринга не пришло")
	}
	return wallet
}

// ============ ТЕСТЫ ============

// TestPairingApproveOverRelay прогоняет полный пейринг через фейковый
// relay: предложение, подтверждение кошелька, установление сессии
func TestPairingApproveOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)

	pairing, err := client.Connect(context.Background(), walletsession.Proposal{
		ChainID: "eip155:56",
		Methods: []string{"eth_sendTransaction"},
		Events:  []string{"accountsChanged"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pairing.URI, "wc:"))

	accounts := []string{"eip155:56:0xA11ce00000000000000000000000000000000001"}
	wallet := approvePairing(t, f, pairing.URI, accounts, time.Now().Add(24*time.Hour).Unix())

	var result walletsession.ApprovalResult
	select {
	case result = <-pairing.Approval:
	case <-time.After(3 * time.Second):
		t.Fatal("подтверждение пейринга не пришло")
	}
	require.NoError(t, result.Err)
	assert.Equal(t, wallet.sessionTopic, result.Session.Topic)
	assert.Equal(t, accounts, result.Session.Accounts)

	sessions := client.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, wallet.sessionTopic, sessions[0].Topic)

	// запись сессии легла в хранилище и переживет рестарт
	meta, err := client.SessionMeta(wallet.sessionTopic)
	require.NoError(t, err)
	var stored sessionEntry
	require.NoError(t, jsonCodec.Unmarshal(meta, &stored))
	assert.Equal(t, wallet.sessionTopic, stored.Topic)
	assert.NotEmpty(t, stored.SymKey)
}

// TestPairingRejectOverRelay проверяет доставку отказа кошелька
func TestPairingRejectOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)

	pairing, err := client.Connect(context.Background(), walletsession.Proposal{ChainID: "eip155:56"})
	require.NoError(t, err)

	pub := f.nextPublishTag(t, tagSessionPropose)
	_, symKey, err := ParsePairingURI(pairing.URI)
	require.NoError(t, err)

	raw, err := jsonCodec.Marshal(rejectBody{Reason: "user denied"})
	require.NoError(t, err)
	reply := sealedEnvelope{ID: 9002, JSONRPC: "2.0", Method: methodSessionReject, Params: raw}
	replyPlain, err := jsonCodec.Marshal(&reply)
	require.NoError(t, err)
	sealed, err := seal(symKey, replyPlain)
	require.NoError(t, err)
	f.push(t, pub.Topic, sealed)

	select {
	case result := <-pairing.Approval:
		require.Error(t, result.Err)
		assert.Contains(t, result.Err.Error(), "user denied")
	case <-time.After(3 * time.Second):
		t.Fatal("отказ пейринга не пришел")
	}

	assert.Empty(t, client.Sessions())
}

// TestSessionPingOverRelay проверяет probe живости установленной сессии
func TestSessionPingOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)
	wallet := establishSession(t, f, client)

	go answerSessionCall(f, wallet, tagSessionPing)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx, wallet.sessionTopic))
}

// TestSessionExtendOverRelay проверяет продление сессии: новый срок
// фиксируется в реестре клиента
func TestSessionExtendOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)
	wallet := establishSession(t, f, client)

	sessions := client.Sessions()
	require.Len(t, sessions, 1)
	before := sessions[0].Expiry

	go answerSessionCall(f, wallet, tagSessionExtend)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.Extend(ctx, wallet.sessionTopic))

	sessions = client.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Expiry.After(before))
}

// TestSessionRequestTimeoutOverRelay проверяет таймаут запроса, на
// который кошелек не ответил
func TestSessionRequestTimeoutOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)
	wallet := establishSession(t, f, client)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := client.Request(ctx, wallet.sessionTopic, "eth_sendTransaction", map[string]string{"to": "0x0"})
	require.Error(t, err)

	var timeoutErr *RequestTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "eth_sendTransaction", timeoutErr.Method)
}

// TestPeerDeleteOverRelay проверяет сквозной путь wc_sessionDelete:
// от push с relay до события наверх и отписки от топика
func TestPeerDeleteOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)
	wallet := establishSession(t, f, client)

	events := make(chan walletsession.Event, 1)
	client.On(walletsession.EventSessionDeleted, func(e walletsession.Event) { events <- e })

	sealed := sealPeerRequest(t, wallet.sessionKey, methodSessionDelete, deleteBody{Reason: "wallet revoked"})
	f.push(t, wallet.sessionTopic, sealed)

	select {
	case event := <-events:
		assert.Equal(t, wallet.sessionTopic, event.SessionTopic())
	case <-time.After(3 * time.Second):
		t.Fatal("событие удаления не пришло")
	}

	assert.Empty(t, client.Sessions())

	// клиент отписался от топика погибшей сессии
	deadline := time.Now().Add(2 * time.Second)
	for f.hasSub(wallet.sessionTopic) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, f.hasSub(wallet.sessionTopic))
}

// TestDisconnectOverRelay проверяет завершение сессии со своей стороны
func TestDisconnectOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	client := newRelayClient(t, f)
	wallet := establishSession(t, f, client)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.Disconnect(ctx, wallet.sessionTopic, "user disconnected"))

	// кошелек получил уведомление о завершении
	pub := f.nextPublishTag(t, tagSessionDelete)
	plain, err := open(wallet.sessionKey, pub.Message)
	require.NoError(t, err)
	var env sealedEnvelope
	require.NoError(t, jsonCodec.Unmarshal(plain, &env))
	assert.Equal(t, methodSessionDelete, env.Method)

	assert.Empty(t, client.Sessions())

	// повторное завершение отдает ошибку с контрактом TopicUnknown()
	err = client.Disconnect(ctx, wallet.sessionTopic, "again")
	var topicErr *TopicError
	require.ErrorAs(t, err, &topicErr)
	assert.True(t, topicErr.TopicUnknown())
}

// TestInitRestoresSessionsFromStorage проверяет восстановление реестра
// сессий из хранилища при инициализации клиента
func TestInitRestoresSessionsFromStorage(t *testing.T) {
	f := newFakeRelay(t)
	storage := NewMemoryStorage()

	key, err := newSymKey()
	require.NoError(t, err)
	topic := topicFromKey(key)
	entry := &sessionEntry{
		Topic:    topic,
		SymKey:   "00ff00ff",
		Accounts: []string{"eip155:56:0xAAA"},
		Expiry:   time.Now().Add(time.Hour).Unix(),
	}
	blob, err := jsonCodec.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, storage.Set(sessionKeyFor(topic), blob))
	require.NoError(t, storage.Set(sessionKeyFor("битая"), []byte("не json")))

	client := New(Config{
		URL:            f.url(),
		DialTimeout:    2 * time.Second,
		RequestTimeout: 2 * time.Second,
	}, storage)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Init(ctx))
	t.Cleanup(func() {
		_ = client.Close(context.Background())
	})

	sessions := client.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, topic, sessions[0].Topic)

	// клиент переподписался на топик живой сессии
	assert.True(t, f.hasSub(topic))

	// битая запись вычищена из хранилища
	_, err = storage.Get(sessionKeyFor("битая"))
	assert.Error(t, err)
}
