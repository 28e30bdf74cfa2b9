package auth

import (
	"errors"
	"fmt"
)

// KeySet holds the HMAC keys the issuer knows about. Exactly one key is
// current and used for signing; every key in the set verifies, so tokens
// signed before a rotation stay valid until they expire.
type KeySet struct {
	currentID string
	keys      map[string][]byte
}

// NewKeySet builds a key set with current as the signing key and retired
// as verify-only keys.
func NewKeySet(currentID string, current []byte, retired map[string]string) (*KeySet, error) {
	if currentID == "" || len(current) == 0 {
		return nil, errors.New("current signing key is required")
	}

	ks := &KeySet{
		currentID: currentID,
		keys:      map[string][]byte{currentID: append([]byte(nil), current...)},
	}
	for kid, secret := range retired {
		if kid == currentID {
			return nil, fmt.Errorf("retired key id %q collides with the current key", kid)
		}
		if secret == "" {
			return nil, fmt.Errorf("retired key %q is empty", kid)
		}
		ks.keys[kid] = []byte(secret)
	}
	return ks, nil
}

// CurrentID returns the id of the signing key.
func (k *KeySet) CurrentID() string {
	return k.currentID
}

func (k *KeySet) signing() (string, []byte) {
	return k.currentID, k.keys[k.currentID]
}

func (k *KeySet) lookup(kid string) ([]byte, bool) {
	key, ok := k.keys[kid]
	return key, ok
}
