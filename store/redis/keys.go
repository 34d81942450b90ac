package redis

// Key prefixes for primary entity storage.
const (
	prefixFollower = "relay:follower:"
	prefixDelivery = "relay:del:"
	prefixDLQ      = "relay:dlq:"
)

// Key prefixes for sorted set indexes.
const (
	zFollowerAll  = "relay:z:follower:all"
	zDeliveryPend = "relay:z:del:pending"
	zDLQAll       = "relay:z:dlq:all"
	zDLQInbox     = "relay:z:dlq:inbox:" // + inbox URL
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
