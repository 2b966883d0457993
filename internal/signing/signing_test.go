package signing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey(1)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)

	msg := []byte("hello intent")
	sig, err := Sign(msg, key)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	require.NoError(t, VerifySignature(msg, sig, pub))
}

func TestVerifySignatureRejectsTamperedMessage(t *testing.T) {
	key := testKey(2)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)

	sig, err := Sign([]byte("original"), key)
	require.NoError(t, err)

	err = VerifySignature([]byte("tampered"), sig, pub)
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifySignatureRejectsBitFlip(t *testing.T) {
	key := testKey(3)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)

	msg := []byte("hello intent")
	sig, err := Sign(msg, key)
	require.NoError(t, err)

	sig[0] ^= 0x01
	require.ErrorIs(t, VerifySignature(msg, sig, pub), ErrVerificationFailed)
}

func TestVerifySignatureRejectsWrongLength(t *testing.T) {
	key := testKey(4)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)

	require.ErrorIs(t, VerifySignature([]byte("msg"), []byte{1, 2, 3}, pub), ErrVerificationFailed)
}

func TestDeriveAddressDeterministic(t *testing.T) {
	key := testKey(5)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)

	addr1, err := DeriveAddress(pub)
	require.NoError(t, err)
	addr2, err := DeriveAddress(pub)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Len(t, addr1, 40) // 20 bytes hex-encoded
}

func TestAddressFromPrivateKeyMatchesDerivePublicKeyThenAddress(t *testing.T) {
	key := testKey(6)
	pub, err := DerivePublicKey(key)
	require.NoError(t, err)
	wantAddr, err := DeriveAddress(pub)
	require.NoError(t, err)

	gotAddr, err := AddressFromPrivateKey(key)
	require.NoError(t, err)
	require.Equal(t, wantAddr, gotAddr)
}

func TestDifferentKeysProduceDifferentAddresses(t *testing.T) {
	addr1, err := AddressFromPrivateKey(testKey(7))
	require.NoError(t, err)
	addr2, err := AddressFromPrivateKey(testKey(8))
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr2)
}
