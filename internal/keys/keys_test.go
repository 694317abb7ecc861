package keys

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/quackstro/openclaw-doge/internal/chain"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestMnemonicGenerationAndValidation(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.True(t, ValidateMnemonic(mnemonic))
	require.True(t, ValidateMnemonic(testMnemonic))
	require.False(t, ValidateMnemonic("doge doge doge"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := EncryptMnemonic(testMnemonic, "correct horse battery")
	require.NoError(t, err)

	back, err := DecryptMnemonic(encrypted, "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, testMnemonic, back)

	_, err = DecryptMnemonic(encrypted, "wrong passphrase")
	require.Error(t, err)
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptMnemonic("not a mnemonic", "pass")
	require.Error(t, err)

	_, err = EncryptMnemonic(testMnemonic, "")
	require.Error(t, err)
}

func TestSaveLoadEncryptedSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")

	encrypted, err := EncryptMnemonic(testMnemonic, "correct horse battery")
	require.NoError(t, err)
	require.NoError(t, SaveEncryptedSeed(encrypted, path))

	loaded, err := LoadEncryptedSeed(path)
	require.NoError(t, err)

	back, err := DecryptMnemonic(loaded, "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, testMnemonic, back)
}

func TestSignerDerivationIsDeterministic(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)

	s1, err := NewSignerFromMnemonic(testMnemonic, params, 0, 0)
	require.NoError(t, err)
	defer s1.Close()

	s2, err := NewSignerFromMnemonic(testMnemonic, params, 0, 0)
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, s1.PubKey(), s2.PubKey())
	require.Equal(t, s1.Address(), s2.Address())
	require.Len(t, s1.PubKey(), 33)

	// Mainnet P2PKH addresses start with D.
	require.Equal(t, byte('D'), s1.Address()[0])

	// Different index, different key.
	s3, err := NewSignerFromMnemonic(testMnemonic, params, 0, 1)
	require.NoError(t, err)
	defer s3.Close()
	require.NotEqual(t, s1.PubKey(), s3.PubKey())
}

func TestSignerProducesVerifiableSignatures(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	s := NewSignerFromKey(priv, chain.MustGet(chain.Mainnet))

	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}

	der, err := s.Sign(digest)
	require.NoError(t, err)

	sig, err := btcecdsa.ParseDERSignature(der)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest, priv.PubKey()))
}

func TestSignerCloseZeroizes(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	s := NewSignerFromKey(priv, chain.MustGet(chain.Mainnet))

	s.Close()
	require.Nil(t, s.PubKey())
	require.Empty(t, s.Address())
	_, err = s.Sign(make([]byte, 32))
	require.Error(t, err)
}
