package jws

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserialize(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	payload := []byte(`{"cid":"abc","command_type":"PaymentCommand"}`)
	raw, err := Serialize(payload, priv)
	require.NoError(t, err)
	assert.Len(t, strings.Split(string(raw), "."), 3)

	got, err := Deserialize(raw, pub)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDeserializeWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	raw, err := Serialize([]byte("payload"), priv)
	require.NoError(t, err)

	_, err = Deserialize(raw, otherPub)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDeserializeMalformed(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = Deserialize([]byte("not-a-jws"), pub)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDeserializeTamperedPayload(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	raw, err := Serialize([]byte("payload"), priv)
	require.NoError(t, err)

	parts := strings.Split(string(raw), ".")
	parts[1] = "cGF5bG9hZHg" // "payloadx"
	_, err = Deserialize([]byte(strings.Join(parts, ".")), pub)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
