package service

import "github.com/yndnr/authmesh-go/pkg/frame"

// RequestKind is the handler a frame is routed to.
type RequestKind uint8

const (
	KindOther RequestKind = iota
	KindIdentify
	KindAuthenticate
	KindRegister
)

func (k RequestKind) String() string {
	switch k {
	case KindIdentify:
		return "identify"
	case KindAuthenticate:
		return "authenticate"
	case KindRegister:
		return "register"
	default:
		return "other"
	}
}

// Classify maps a frame's (command, qualifier, status) triple to a kind.
// Only requests are handled; responses and unknown contexts are "other".
func Classify(f *frame.Frame) RequestKind {
	if f.Status() != frame.StatusRequest {
		return KindOther
	}
	switch {
	case f.CheckContext(frame.CmdNull, frame.QlfIdentify):
		return KindIdentify
	case f.CheckContext(frame.CmdNull, frame.QlfAuthenticate):
		return KindAuthenticate
	case f.CheckContext(frame.CmdBasic, frame.QlfRegister):
		return KindRegister
	default:
		return KindOther
	}
}

// Outcome tells the caller what to do with a routed frame.
type Outcome uint8

const (
	// OutcomeReply: the frame was rewritten in place; send it to NextHop.
	OutcomeReply Outcome = iota
	// OutcomePending: the dispatcher kept the frame until its identity
	// lookup completes. The caller must not reuse the frame's buffer.
	OutcomePending
	// OutcomeForward: not an authentication request; NextHop is the hub.
	OutcomeForward
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReply:
		return "reply"
	case OutcomePending:
		return "pending"
	default:
		return "forward"
	}
}
