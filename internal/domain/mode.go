package domain

import "fmt"

// SystemMode is the operator-controlled kill switch that routes new
// provisioning requests either through the durable queue or directly
// through the synchronous provisioner.
type SystemMode string

const (
	// ModeAsyncQueue routes requests through the durable job queue.
	ModeAsyncQueue SystemMode = "async_queue"

	// ModeSyncDirect bypasses the queue and provisions in the request path.
	ModeSyncDirect SystemMode = "sync_direct"
)

// ParseSystemMode validates a raw mode value.
func ParseSystemMode(raw string) (SystemMode, error) {
	switch SystemMode(raw) {
	case ModeAsyncQueue:
		return ModeAsyncQueue, nil
	case ModeSyncDirect:
		return ModeSyncDirect, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}
