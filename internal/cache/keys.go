package cache

// SentKey is the redis key caching the fact that a sent audit row exists for
// an idempotency key. Only positive results are ever cached: a sent row is
// permanent, so the cached value can never go stale.
func SentKey(idempotencyKey string) string {
	return "notify:sent:" + idempotencyKey
}
