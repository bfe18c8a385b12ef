// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package token

import "time"

// SetNow pins the codec clock so tests can verify exact expiry boundaries.
func (c *Codec) SetNow(now func() time.Time) {
	c.now = now
}
