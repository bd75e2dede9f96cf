package wire_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

func testKey(t *testing.T, id domain.KeyID) domain.SessionKey {
	t.Helper()
	spec := domain.CryptoSpec{Cipher: domain.CipherAES128GCM}
	k, err := crypto.GenerateKey(spec)
	require.NoError(t, err)
	return domain.SessionKey{ID: id, Key: k, Spec: spec}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, wire.SecureCommMsg, []byte("payload")))
	require.NoError(t, wire.WriteFrame(&buf, wire.Handshake1, nil))

	f, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.SecureCommMsg, f.Type)
	require.Equal(t, []byte("payload"), f.Payload)
	require.NoError(t, f.Expect(wire.SecureCommMsg))

	f, err = wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.ErrorIs(t, f.Expect(wire.Handshake2), wire.ErrUnexpectedType)

	_, err = wire.ReadFrame(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], wire.MaxFrameSize+1)
	_, err := wire.ReadFrame(bytes.NewReader(hdr[:]))
	require.ErrorIs(t, err, wire.ErrFrameTooLarge)
}

func TestHelloRoundTrip(t *testing.T) {
	nonce, err := wire.NewNonce()
	require.NoError(t, err)

	b, err := wire.EncodeHello(wire.Hello{KeyID: 7, Nonce: nonce})
	require.NoError(t, err)
	f, err := wire.ReadFrame(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, wire.Handshake1, f.Type)

	h, err := wire.DecodeHello(f.Payload)
	require.NoError(t, err)
	require.Equal(t, domain.KeyID(7), h.KeyID)
	require.Equal(t, nonce, h.Nonce)

	_, err = wire.DecodeHello([]byte{0xff})
	require.Error(t, err)
}

func TestHelloReply(t *testing.T) {
	key := testKey(t, 3)
	clientNonce, _ := wire.NewNonce()
	serverNonce, _ := wire.NewNonce()

	b, err := wire.SealHelloReply(key, wire.HelloReply{ReplyNonce: clientNonce, Nonce: serverNonce})
	require.NoError(t, err)
	f, err := wire.ReadFrame(bytes.NewReader(b))
	require.NoError(t, err)

	r, err := wire.OpenHelloReply(key, f.Payload, clientNonce)
	require.NoError(t, err)
	require.Equal(t, serverNonce, r.Nonce)

	other, _ := wire.NewNonce()
	_, err = wire.OpenHelloReply(key, f.Payload, other)
	require.ErrorIs(t, err, wire.ErrNonceMismatch)
}

func TestSessionMessageSealedOnceOpensForEveryHolder(t *testing.T) {
	key := testKey(t, 11)
	frame, err := wire.SealSessionMessage(key, wire.SessionMessage{Seq: 4, Data: []byte("hi all")})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f, err := wire.ReadFrame(bytes.NewReader(frame))
		require.NoError(t, err)
		m, err := wire.OpenSessionMessage(key, f.Payload)
		require.NoError(t, err)
		require.Equal(t, uint64(4), m.Seq)
		require.Equal(t, []byte("hi all"), m.Data)
	}

	f, err := wire.ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)

	// Same key bytes under a different identifier fails authentication.
	moved := key
	moved.ID = 12
	_, err = wire.OpenSessionMessage(moved, f.Payload)
	require.Error(t, err)

	_, err = wire.OpenSessionMessage(testKey(t, 11), f.Payload)
	require.Error(t, err)
}

func TestMaxMessageSizeFitsInOneFrame(t *testing.T) {
	spec := domain.CryptoSpec{Cipher: domain.CipherXChaCha20Poly1305}
	k, err := crypto.GenerateKey(spec)
	require.NoError(t, err)
	key := domain.SessionKey{ID: ^domain.KeyID(0), Key: k, Spec: spec}

	data := make([]byte, wire.MaxMessageSize)
	frame, err := wire.SealSessionMessage(key, wire.SessionMessage{Seq: ^uint64(0), Data: data})
	require.NoError(t, err)
	f, err := wire.ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	m, err := wire.OpenSessionMessage(key, f.Payload)
	require.NoError(t, err)
	require.Len(t, m.Data, wire.MaxMessageSize)

	_, err = wire.SealSessionMessage(key, wire.SessionMessage{Data: make([]byte, wire.MaxFrameSize)})
	require.ErrorIs(t, err, wire.ErrFrameTooLarge)
}
