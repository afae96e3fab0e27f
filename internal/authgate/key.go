package authgate

import "crypto/rand"

// randomKey returns n cryptographically random bytes for use as an HMAC
// signing key.
func randomKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
