package portal

import (
	"github.com/google/uuid"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

// Session is one order-entry connection's view inside the portal. The
// transport owns the socket; the portal owns everything else. All fields
// are read and written only on the portal writer, except the outbound
// queue, which the transport drains.
type Session struct {
	id  uuid.UUID
	out chan Response

	investor uint64
	loggedIn bool
	closed   bool
}

// NewSession creates a session with a bounded outbound queue. When the
// queue overflows the session is dropped rather than stalling the engine.
func NewSession(queueSize int) *Session {
	return &Session{
		id:  uuid.New(),
		out: make(chan Response, queueSize),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Out is the response stream the transport writes to the socket. It closes
// when the portal drops or disconnects the session.
func (s *Session) Out() <-chan Response { return s.out }

// Investor returns the bound investor id and whether the session is logged
// in. Portal-writer only.
func (s *Session) Investor() (uint64, bool) {
	return s.investor, s.loggedIn
}

// send enqueues a response without blocking. On overflow the session is
// closed; the transport notices the closed stream and tears the connection
// down, which in turn enqueues the Disconnect that releases the login
// binding. Runs on the portal writer only.
func (s *Session) send(resp Response) {
	if s.closed {
		return
	}
	select {
	case s.out <- resp:
	default:
		s.close()
	}
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// Response is one server-to-client message on the order-entry stream,
// a flat struct with a type tag like the public market events. SeqNum is
// echoed only on acknowledgements of the originating request; fills and
// deads carry the order id instead.
type Response struct {
	Type    ResponseType
	SeqNum  uint32
	OrderID uint64
	Price   float32
	Size    uint32
	Reason  common.RejectReason
}

type ResponseType uint8

const (
	RespLoginAck ResponseType = iota + 1
	RespLoginRej
	RespOrderAck
	RespOrderRej
	RespOrderFill
	RespOrderDead
	RespCancelRej
)

func (t ResponseType) String() string {
	switch t {
	case RespLoginAck:
		return "login_ack"
	case RespLoginRej:
		return "login_rej"
	case RespOrderAck:
		return "order_ack"
	case RespOrderRej:
		return "order_rej"
	case RespOrderFill:
		return "order_fill"
	case RespOrderDead:
		return "order_dead"
	case RespCancelRej:
		return "cancel_rej"
	}
	return "unknown"
}
