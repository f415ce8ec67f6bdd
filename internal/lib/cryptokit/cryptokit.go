// Package cryptokit реализует псевдонимизацию и шифрование идентификаторов.
//
// Идентификатор пользователя никогда не хранится в открытом виде: для
// поиска и связей используется детерминированный HMAC-дайджест (HashID),
// для восстановления — авторизованное симметричное шифрование AES-GCM.
package cryptokit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// ErrDecrypt возвращается при попытке расшифровать повреждённые данные
// или данные, зашифрованные другим ключом.
var ErrDecrypt = errors.New("cannot decrypt value")

// HashID возвращает детерминированный дайджест идентификатора пользователя
// под секретом развёртывания: HMAC-SHA256, url-safe base64.
// Один и тот же идентификатор под одним секретом всегда даёт один дайджест.
func HashID(secret string, telegramID int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(telegramID, 10)))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Codec шифрует и расшифровывает строки ключом развёртывания.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec создаёт Codec из ключа в url-safe base64 (32 байта после декодирования).
func NewCodec(encodedKey string) (*Codec, error) {
	const op = "cryptokit.NewCodec"
	key, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s: key must be 32 bytes, got %d", op, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Codec{aead: aead}, nil
}

// EncryptText шифрует строку и возвращает base64 от nonce+шифротекста.
func (c *Codec) EncryptText(value string) (string, error) {
	const op = "cryptokit.EncryptText"
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptText расшифровывает строку, полученную из EncryptText.
// Возвращает ErrDecrypt при повреждении данных или неверном ключе.
func (c *Codec) DecryptText(value string) (string, error) {
	const op = "cryptokit.DecryptText"
	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrDecrypt)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%s: %w", op, ErrDecrypt)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrDecrypt)
	}
	return string(plain), nil
}

// EncryptID шифрует числовой идентификатор пользователя.
func (c *Codec) EncryptID(telegramID int64) (string, error) {
	return c.EncryptText(strconv.FormatInt(telegramID, 10))
}

// DecryptID расшифровывает идентификатор, сохранённый через EncryptID.
func (c *Codec) DecryptID(value string) (int64, error) {
	const op = "cryptokit.DecryptID"
	plain, err := c.DecryptText(value)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(plain, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, ErrDecrypt)
	}
	return id, nil
}
