package redis

import "strings"

const (
	keyNamespace = "ts"

	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	cartPrefix        = "cart"
	lockPrefix        = "lock"
	channelPrefix     = "realtime"
)

// IdempotencyKey namespaces a client-supplied key under its request scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

// RateLimitKey namespaces a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return joinKey(rateLimitPrefix, scope)
}

// CartKey scopes a cart storage key (cart_<restaurant_id>) to one customer session.
func (c *Client) CartKey(session, key string) string {
	return joinKey(cartPrefix, session, key)
}

// LockKey namespaces a distributed lock.
func (c *Client) LockKey(name string) string {
	return joinKey(lockPrefix, name)
}

// ChannelKey namespaces a pub/sub channel.
func (c *Client) ChannelKey(channel string) string {
	return joinKey(channelPrefix, channel)
}

// joinKey prefixes parts with the namespace, dropping blank parts.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
