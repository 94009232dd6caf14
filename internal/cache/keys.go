package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IdempotencyKey maps a client-supplied Idempotency-Key header to a cache
// key. The header is hashed so arbitrary client strings stay bounded.
func IdempotencyKey(clientKey string) string {
	sum := sha256.Sum256([]byte(clientKey))
	return fmt.Sprintf("floorcast:idempotency:%s", hex.EncodeToString(sum[:]))
}
