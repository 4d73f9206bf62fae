package service

import (
	"fmt"
	"time"
)

// IdempotencyKey builds the deterministic business key that makes a logical
// notification unique: channel-kind-YYYYMMDD-identity. Identity is the
// property id for tenant messages and the recipient address for consolidated
// ones. The key carries no run identifier on purpose: re-runs on the same
// day must collide with earlier sends.
func IdempotencyKey(channel, kind string, day time.Time, identity string) string {
	return fmt.Sprintf("%s-%s-%s-%s", channel, kind, day.UTC().Format("20060102"), identity)
}
