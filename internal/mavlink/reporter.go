package mavlink

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/sweeney/land-detector/internal/detector"
)

// MessageWriter writes a message to every connected channel. *gomavlib.Node
// satisfies it.
type MessageWriter interface {
	WriteMessageAll(msg message.Message) error
}

// Reporter publishes the landed state back to the flight stack as
// EXTENDED_SYS_STATE.
type Reporter struct {
	w MessageWriter
}

// NewReporter creates a reporter writing to w.
func NewReporter(w MessageWriter) *Reporter {
	return &Reporter{w: w}
}

// PublishLanded implements detector.Publisher.
func (r *Reporter) PublishLanded(out detector.Output) error {
	msg := &common.MessageExtendedSysState{
		VtolState:   common.MAV_VTOL_STATE_UNDEFINED,
		LandedState: LandedState(out.State),
	}
	if err := r.w.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("write EXTENDED_SYS_STATE: %w", err)
	}
	return nil
}

// LandedState maps a detector state onto MAV_LANDED_STATE. Ground contact
// alone still reports in air.
func LandedState(s detector.State) common.MAV_LANDED_STATE {
	switch s {
	case detector.StateMaybeLanded, detector.StateLanded:
		return common.MAV_LANDED_STATE_ON_GROUND
	case detector.StateFlying, detector.StateGroundContact, detector.StateFreefall:
		return common.MAV_LANDED_STATE_IN_AIR
	default:
		return common.MAV_LANDED_STATE_UNDEFINED
	}
}

var _ detector.Publisher = (*Reporter)(nil)
