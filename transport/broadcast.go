package transport

import (
	"fmt"

	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
)

// Broadcast sends e to every endpoint in view. It is best-effort, not
// atomic: every unicast is attempted regardless of earlier failures, and
// the returned error (if any) only reports that at least one send failed.
func Broadcast(view common.View, e codec.Event) error {
	raw, err := codec.Encode(e)
	if err != nil {
		return err
	}
	var failures int
	for _, endpoint := range view {
		if _, err := SendBytes(endpoint, raw); err != nil {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("broadcast: %d of %d sends failed", failures, len(view))
	}
	return nil
}

// BroadcastExcept is Broadcast minus a single excluded id, used by a
// Process to skip sending to itself.
func BroadcastExcept(view common.View, except common.PeerId, e codec.Event) error {
	filtered := make(common.View, len(view))
	for id, ep := range view {
		if id != except {
			filtered[id] = ep
		}
	}
	return Broadcast(filtered, e)
}
