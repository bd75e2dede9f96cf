package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
)

func TestSealOpen_AllCiphers(t *testing.T) {
	for _, c := range []string{
		domain.CipherAES128GCM,
		domain.CipherAES256GCM,
		domain.CipherXChaCha20Poly1305,
	} {
		t.Run(c, func(t *testing.T) {
			require := require.New(t)
			spec := domain.CryptoSpec{Cipher: c}

			key, err := crypto.GenerateKey(spec)
			require.NoError(err)

			sealed, err := crypto.Seal(spec, key, []byte("hello"), []byte("ad"))
			require.NoError(err)

			pt, err := crypto.Open(spec, key, sealed, []byte("ad"))
			require.NoError(err)
			require.Equal("hello", string(pt))

			_, err = crypto.Open(spec, key, sealed, []byte("other ad"))
			require.Error(err)
		})
	}
}

func TestSeal_RandomNonce(t *testing.T) {
	spec := domain.CryptoSpec{Cipher: domain.CipherXChaCha20Poly1305}
	key, err := crypto.GenerateKey(spec)
	require.NoError(t, err)

	a, err := crypto.Seal(spec, key, []byte("same"), nil)
	require.NoError(t, err)
	b, err := crypto.Seal(spec, key, []byte("same"), nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestNewAEAD_Rejects(t *testing.T) {
	_, err := crypto.NewAEAD(domain.CryptoSpec{Cipher: "ROT13"}, make([]byte, 16))
	require.ErrorIs(t, err, crypto.ErrUnknownCipher)

	_, err = crypto.NewAEAD(domain.CryptoSpec{Cipher: domain.CipherAES256GCM}, make([]byte, 16))
	require.Error(t, err)

	_, err = crypto.Open(domain.CryptoSpec{Cipher: domain.CipherAES128GCM}, make([]byte, 16), []byte{1, 2}, nil)
	require.ErrorIs(t, err, crypto.ErrShortCiphertext)
}

func TestDH_Agrees(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	require.Equal(t, ab, ba)
}

func TestEd25519_SignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	sig := crypto.SignEd25519(priv, []byte("msg"))
	require.True(t, crypto.VerifyEd25519(pub, []byte("msg"), sig))
	require.False(t, crypto.VerifyEd25519(pub, []byte("other"), sig))
}
