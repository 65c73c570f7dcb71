// Package bus bridges control-bus channels to lifecycle operations: each
// request channel decodes into a typed request, invokes exactly one manager
// operation and, on success, publishes exactly one response on the paired
// response channel. Failures are logged and counted; nothing is published
// (the protocol defines no error channel).
package bus

// Channel names of the control protocol. Requests and responses pair by
// suffix; a deployment-wide prefix can be added via Bridge configuration.
const (
	ChannelCreateRouter        = "request:create-router"
	ChannelGetCapabilities     = "request:get-router-rtp-capabilities"
	ChannelCreateSendTransport = "request:create-send-transport"
	ChannelCreateRecvTransport = "request:create-recv-transport"
	ChannelConnectTransport    = "request:connect-transport"
	ChannelCreateProducer      = "request:create-producer"
	ChannelCreateConsumer      = "request:create-consumer"
	ChannelPause               = "request:pause"
	ChannelResume              = "request:resume"
	ChannelUserDisconnect      = "request:user-disconnect"
	ChannelSessionEnd          = "request:session-end"

	ChannelRespGetCapabilities     = "response:get-router-rtp-capabilities"
	ChannelRespCreateSendTransport = "response:create-send-transport"
	ChannelRespCreateRecvTransport = "response:create-recv-transport"
	ChannelRespConnectTransport    = "response:connect-transport"
	ChannelRespCreateProducer      = "response:create-producer"
	ChannelRespCreateConsumer      = "response:create-consumer"
)

// RequestChannels lists every channel the bridge subscribes to.
func RequestChannels() []string {
	return []string{
		ChannelCreateRouter,
		ChannelGetCapabilities,
		ChannelCreateSendTransport,
		ChannelCreateRecvTransport,
		ChannelConnectTransport,
		ChannelCreateProducer,
		ChannelCreateConsumer,
		ChannelPause,
		ChannelResume,
		ChannelUserDisconnect,
		ChannelSessionEnd,
	}
}
