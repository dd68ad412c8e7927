package constants

import (
	"time"
)

// Heartbeat cadence
const (
	// HeartbeatShortDelay - reschedule delay after a successful heartbeat
	// when the network is unmetered and the app is foregrounded.
	HeartbeatShortDelay = 30 * time.Second

	// HeartbeatLongDelay - reschedule delay on metered networks or while
	// the app is backgrounded. Keeps radio wakeups rare.
	HeartbeatLongDelay = 5 * time.Minute

	// AccountInfoDelay - delay before a drift-triggered account-info
	// refresh runs. Short: the heartbeat already told us we are stale.
	AccountInfoDelay = 2 * time.Second
)

// Listing
const (
	// SectionPageSize - sections fetched per /datum/section page.
	SectionPageSize = 50

	// SearchSessionCapacity - bound on retained search sessions.
	// Oldest-by-request-time is evicted when exceeded.
	SearchSessionCapacity = 4

	// PreviewImageSize - edge length requested from /datum/image.
	PreviewImageSize = 256
)

// HTTP transport tunables shared by the gateway client.
const (
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 5 * time.Second
)

// Gateway retry policy (retryablehttp).
const (
	GatewayRetryMax     = 4
	GatewayRetryWaitMin = 1 * time.Second
	GatewayRetryWaitMax = 15 * time.Second
)

// Event bus buffer sizing.
const (
	// EventBusDefaultBuffer - default per-subscriber channel buffer.
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap on per-subscriber channel buffer.
	EventBusMaxBuffer = 10000
)
