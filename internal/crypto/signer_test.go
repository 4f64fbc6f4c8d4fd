package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flipBit(b []byte, bit int) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	out[bit/8] ^= 1 << (bit % 8)
	return out
}

func TestSigner_SignVerify(t *testing.T) {
	s := NewSigner([]byte("test-secret"))

	messages := [][]byte{
		{},
		[]byte("a"),
		[]byte("eyJwcm92aWRlciI6ImdpdGh1YiJ9"),
		{0x00, 0xff, 0x10, 0x80, 0x7f},
	}

	for _, m := range messages {
		sig := s.Sign(m)
		assert.Len(t, sig, 43)
		assert.True(t, s.Verify(m, sig))
	}
}

func TestSigner_RejectsMessageBitFlips(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	m := []byte("header.claims")
	sig := s.Sign(m)

	for bit := 0; bit < len(m)*8; bit++ {
		assert.False(t, s.Verify(flipBit(m, bit), sig), "bit %d", bit)
	}
}

func TestSigner_RejectsSignatureBitFlips(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	m := []byte("header.claims")

	raw, err := Decode(s.Sign(m))
	require.NoError(t, err)

	for bit := 0; bit < len(raw)*8; bit++ {
		assert.False(t, s.Verify(m, Encode(flipBit(raw, bit))), "bit %d", bit)
	}
}

func TestSigner_RejectsEncodedSignatureEdits(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	m := []byte("payload")
	sig := []byte(s.Sign(m))

	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			mutated := flipBit(sig, i*8+bit)
			assert.False(t, s.Verify(m, string(mutated)), "char %d bit %d", i, bit)
		}
	}
}

func TestSigner_KeySeparation(t *testing.T) {
	m := []byte("same message")
	a := NewSigner([]byte("key-a"))
	b := NewSigner([]byte("key-b"))

	assert.NotEqual(t, a.Sign(m), b.Sign(m))
	assert.False(t, b.Verify(m, a.Sign(m)))
}

func TestNewSigner_CopiesKey(t *testing.T) {
	key := []byte("mutable")
	s := NewSigner(key)
	sig := s.Sign([]byte("m"))

	key[0] = 'X'
	assert.True(t, s.Verify([]byte("m"), sig))
}

func TestSigner_RejectsPaddedSignature(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	m := []byte("header.claims")
	sig := s.Sign(m)
	require.True(t, s.Verify(m, sig))

	for _, suffix := range []string{"=", "==", "===", "=========="} {
		assert.False(t, s.Verify(m, sig+suffix), "suffix %q", suffix)
	}
	assert.False(t, s.Verify(m, sig[:len(sig)-1]))
}

func TestSigner_RejectsGarbage(t *testing.T) {
	s := NewSigner([]byte("k"))
	assert.False(t, s.Verify([]byte("m"), ""))
	assert.False(t, s.Verify([]byte("m"), "not base64!"))
}
