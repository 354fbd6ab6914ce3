// internal/infrastructure/api/relay/crypto.go
package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// keyPair - одноразовая X25519 пара для согласования сессионного ключа
type keyPair struct {
	priv []byte
	pub  []byte
}

func newKeyPair() (*keyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("ошибка генерации ключа: %w", err)
	}

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления публичного ключа: %w", err)
	}

	return &keyPair{priv: priv, pub: pub}, nil
}

func (k *keyPair) publicHex() string {
	return hex.EncodeToString(k.pub)
}

// sessionKey выводит симметричный ключ сессии из ECDH с ключом кошелька.
// Обе стороны получают одинаковый ключ, топик сессии считается от него.
func (k *keyPair) sessionKey(peerPubHex string) ([]byte, error) {
	peerPub, err := hex.DecodeString(peerPubHex)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора ключа кошелька: %w", err)
	}

	shared, err := curve25519.X25519(k.priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("ошибка согласования ключа: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), key); err != nil {
		return nil, fmt.Errorf("ошибка вывода сессионного ключа: %w", err)
	}

	return key, nil
}

// newSymKey выдает симметричный ключ пейринг-топика. Он уходит кошельку
// открытым текстом внутри URI, поэтому живет только до установления сессии.
func newSymKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("ошибка генерации ключа: %w", err)
	}
	return key, nil
}

// topicFromKey - детерминированный идентификатор топика.
// Кошелек считает тот же sha256 от того же ключа и подписывается
// на тот же топик без дополнительного обмена.
func topicFromKey(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// seal запечатывает открытый текст в конверт base64(nonce || ciphertext)
func seal(key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("ошибка инициализации шифра: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open вскрывает конверт, созданный seal
func open(key []byte, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора конверта: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации шифра: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("конверт короче nonce: %d байт", len(raw))
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка вскрытия конверта: %w", err)
	}

	return plaintext, nil
}

// proposalFingerprint - отпечаток предложения пейринга. JSON сперва
// канонизируется по RFC 8785, иначе отпечатки двух сериализаций одного
// предложения разойдутся из-за порядка ключей.
func proposalFingerprint(proposal walletsession.Proposal, proposerKey string) (string, error) {
	doc, err := jsonCodec.Marshal(struct {
		ProposerKey string   `json:"proposerKey"`
		ChainID     string   `json:"chainId"`
		Methods     []string `json:"methods"`
		Events      []string `json:"events"`
	}{
		ProposerKey: proposerKey,
		ChainID:     proposal.ChainID,
		Methods:     proposal.Methods,
		Events:      proposal.Events,
	})
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации предложения: %w", err)
	}

	canonical, err := jcs.Transform(doc)
	if err != nil {
		return "", fmt.Errorf("ошибка канонизации предложения: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
