package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/goccy/go-json"
)

// PayloadTTL — срок жизни ссылок мини-приложения.
const PayloadTTL = 24 * time.Hour

// ErrInvalidToken возвращается, если токен подделан, повреждён или истёк.
var ErrInvalidToken = errors.New("недействительный токен")

// Sealer шифрует данные ключом Fernet.
type Sealer struct {
	keys []*fernet.Key
}

// NewSealer разбирает ключ в формате base64 (как у fernetkeygen).
func NewSealer(key string) (*Sealer, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("разбор ключа шифрования: %w", err)
	}
	return &Sealer{keys: []*fernet.Key{k}}, nil
}

// Seal сериализует v в JSON и шифрует.
func (s *Sealer) Seal(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	tok, err := fernet.EncryptAndSign(raw, s.keys[0])
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// Open расшифровывает токен не старше PayloadTTL в v.
func (s *Sealer) Open(token string, v any) error {
	raw := fernet.VerifyAndDecrypt([]byte(token), PayloadTTL, s.keys)
	if raw == nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// EncryptString шифрует строку для хранения в БД.
func (s *Sealer) EncryptString(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), s.keys[0])
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// DecryptString расшифровывает сохранённую строку. Срок жизни не проверяется.
func (s *Sealer) DecryptString(token string) (string, error) {
	raw := fernet.VerifyAndDecrypt([]byte(token), -1, s.keys)
	if raw == nil {
		return "", ErrInvalidToken
	}
	return string(raw), nil
}
