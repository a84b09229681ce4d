package redis

import "strings"

// Every key and channel lives under "tc:".
const keyNamespace = "tc"

// IdempotencyKey is tc:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return BuildKey("idempotency", scope, id)
}

// CronLockKey is tc:cron_lock:<name>.
func (c *Client) CronLockKey(name string) string {
	return BuildKey("cron_lock", name)
}

// CronRunsKey is tc:cron_runs:<name>, the hash of job start times.
func (c *Client) CronRunsKey(name string) string {
	return BuildKey("cron_runs", name)
}

// TeamCartKey holds one serialized cart and its version.
func TeamCartKey(cartID string) string {
	return BuildKey("teamcart", cartID)
}

// TeamCartExpiryIndexKey is the sorted set of live carts scored by expiry.
func TeamCartExpiryIndexKey() string {
	return BuildKey("teamcart", "expiry")
}

// TeamCartEventsChannel carries one cart's realtime notifications.
func TeamCartEventsChannel(cartID string) string {
	return BuildKey("teamcart", cartID, "events")
}

// OutboxChannel carries relayed outbox events of one type.
func OutboxChannel(eventType string) string {
	return BuildKey("outbox", eventType)
}

// BuildKey joins parts under the namespace, skipping blanks.
func BuildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
