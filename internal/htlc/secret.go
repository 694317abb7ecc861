package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/quackstro/openclaw-doge/pkg/helpers"
)

// GenerateSecret generates a cryptographically secure 32-byte secret and
// returns both the secret and its HASH160.
func GenerateSecret() (secret, hash []byte, err error) {
	secret, err = helpers.GenerateSecureRandom(SecretSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, btcutil.Hash160(secret), nil
}

// VerifySecret reports whether secret is 32 bytes and hashes to
// expectedHash under HASH160. The comparison is constant time.
func VerifySecret(secret, expectedHash []byte) bool {
	if len(secret) != SecretSize || len(expectedHash) != SecretHashSize {
		return false
	}
	return helpers.ConstantTimeCompare(btcutil.Hash160(secret), expectedHash)
}
