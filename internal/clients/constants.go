package clients

import "time"

const (
	MAX_RETRIES     = 5
	INITIAL_BACKOFF = 250 * time.Millisecond
	MAX_BACKOFF     = 4 * time.Second

	VALKEY_PROCESSED_KEY = "commentguard:processed_comments"
	KAFKA_TRANSACTION_ID = "commentguard-events"
)

// sleepBackoff waits d and returns the next delay, doubled and capped at
// MAX_BACKOFF.
func sleepBackoff(d time.Duration) time.Duration {
	time.Sleep(d)
	d *= 2
	if d > MAX_BACKOFF {
		d = MAX_BACKOFF
	}
	return d
}
