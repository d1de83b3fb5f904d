package assemble

import (
	"github.com/drand/assemble/log"
)

// RelayDispatcher implements the Transporter's RelayListener contract,
// decoding every incoming relay frame and routing it to the Getter (a
// URI announcement) or the Relayer (a message). Unknown or malformed
// frames are logged and dropped.
type RelayDispatcher struct {
	log     log.Logger
	getter  *Getter
	relayer *Relayer
}

// NewRelayDispatcher builds a dispatcher routing decoded frames to
// getter and relayer.
func NewRelayDispatcher(l log.Logger, getter *Getter, relayer *Relayer) *RelayDispatcher {
	return &RelayDispatcher{log: l, getter: getter, relayer: relayer}
}

// OnIncomingRelay implements RelayListener.
func (d *RelayDispatcher) OnIncomingRelay(from PubKey, payload []byte) {
	frame, code := DecodeFrame(payload)
	if code != NoError {
		d.log.Debug("relay_dispatch_drop", "from", from, "reason", code)
		return
	}

	switch f := frame.(type) {
	case RelayURIFrame:
		d.getter.HandleIncomingURI(f.Sender, f.URI, f.Ts)
	case RelayMsgFrame:
		d.relayer.HandleIncomingMessage(from, f.Message)
	default:
		d.log.Debug("relay_dispatch_drop", "from", from, "reason", "unexpected frame kind")
	}
}
