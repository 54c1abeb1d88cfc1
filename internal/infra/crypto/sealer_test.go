package crypto

import (
	"errors"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	s, err := NewSealer(k.Encode())
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := newTestSealer(t)
	type payload struct {
		Link   string `json:"link"`
		UserID int64  `json:"user_id"`
	}
	tok, err := s.Seal(payload{Link: "https://example.org/b/1", UserID: 5})
	require.NoError(t, err)

	var got payload
	require.NoError(t, s.Open(tok, &got))
	require.Equal(t, int64(5), got.UserID)
	require.Equal(t, "https://example.org/b/1", got.Link)
}

func TestOpenRejectsForeignKey(t *testing.T) {
	a := newTestSealer(t)
	b := newTestSealer(t)
	tok, err := a.Seal(map[string]int{"x": 1})
	require.NoError(t, err)

	var got map[string]int
	err = b.Open(tok, &got)
	require.True(t, errors.Is(err, ErrInvalidToken))
	require.True(t, errors.Is(b.Open("garbage", &got), ErrInvalidToken))
}

func TestEncryptString(t *testing.T) {
	s := newTestSealer(t)
	enc, err := s.EncryptString("secret")
	require.NoError(t, err)
	require.NotEqual(t, "secret", enc)

	plain, err := s.DecryptString(enc)
	require.NoError(t, err)
	require.Equal(t, "secret", plain)
}
