// Package net carries the two transports: the framed TCP order-entry
// server and the websocket market-data server. Both only translate between
// the wire and portal commands; every decision happens on the portal
// writer.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/Miloris/stock-exchange-simulation/internal/portal"
	"github.com/Miloris/stock-exchange-simulation/internal/wire"
)

var ErrImproperConversion = errors.New("improper type conversion")

// Server accepts investor order-entry connections and shuttles framed
// messages between each socket and the portal.
type Server struct {
	address      string
	portal       *portal.Portal
	pool         WorkerPool
	sessionQueue int
	cancel       context.CancelFunc

	// Live sockets by session id, so shutdown can unblock readers.
	conns     map[string]net.Conn
	connsLock sync.Mutex
}

func NewServer(address string, p *portal.Portal, workers, sessionQueue int) *Server {
	return &Server{
		address:      address,
		portal:       p,
		pool:         NewWorkerPool(workers),
		sessionQueue: sessionQueue,
		conns:        make(map[string]net.Conn),
	}
}

// addConn is an atomic map add.
func (s *Server) addConn(id string, conn net.Conn) {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()
	s.conns[id] = conn
}

// deleteConn is an atomic map remove.
func (s *Server) deleteConn(id string) {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()
	delete(s.conns, id)
}

func (s *Server) closeAllConns() {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()
	for id, conn := range s.conns {
		conn.Close()
		delete(s.conns, id)
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("order entry server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("unable to start order entry listener: %w", err)
	}
	t.Go(func() error {
		<-t.Dying()
		s.closeAllConns()
		return listener.Close()
	})

	s.pool.Setup(t, s.handleConnection)

	log.Info().Str("address", s.address).Msg("order entry server running")
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return t.Wait()
			default:
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
		}
		log.Info().
			Str("remote", conn.RemoteAddr().String()).
			Msg("new order entry connection")
		s.pool.AddTask(conn)
	}
}

// handleConnection owns one connection for its lifetime: it registers a
// portal session, starts the response pump and runs the framed read loop.
// Connection-level failures tear down this session only.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	defer conn.Close()

	session := portal.NewSession(s.sessionQueue)
	s.addConn(session.ID().String(), conn)
	defer s.deleteConn(session.ID().String())

	// The portal processes in-flight requests after a disconnect, so the
	// disconnect must be enqueued exactly once, whichever pump fails
	// first.
	var disconnect sync.Once
	disconnected := func() {
		disconnect.Do(func() {
			s.portal.TryEnqueue(portal.DisconnectCmd{Session: session}, t.Dying())
		})
	}

	t.Go(func() error {
		s.responsePump(t, conn, session)
		disconnected()
		return nil
	})

	for {
		select {
		case <-t.Dying():
			disconnected()
			return nil
		default:
		}

		msg, err := wire.ReadFrame(conn)
		if err != nil {
			log.Info().
				Str("remote", conn.RemoteAddr().String()).
				Str("session", session.ID().String()).
				Err(err).
				Msg("order entry connection closed")
			disconnected()
			return nil
		}

		switch m := msg.(type) {
		case wire.Login:
			s.portal.TryEnqueue(portal.LoginCmd{
				Session:  session,
				SeqNum:   m.SeqNum,
				Investor: m.Investor,
				Password: m.Password,
			}, t.Dying())
		case wire.NewOrder:
			s.portal.TryEnqueue(portal.NewOrderCmd{
				Session: session,
				SeqNum:  m.SeqNum,
				Ticker:  m.Ticker,
				Side:    m.Side,
				Kind:    m.Kind,
				TIF:     m.TIF,
				Price:   m.Price,
				Size:    m.Size,
			}, t.Dying())
		case wire.CancelOrder:
			s.portal.TryEnqueue(portal.CancelOrderCmd{
				Session: session,
				SeqNum:  m.SeqNum,
				OrderID: m.OrderID,
			}, t.Dying())
		default:
			// A client sending server-side messages is broken; drop it.
			log.Error().
				Str("session", session.ID().String()).
				Int("messageType", int(msg.Type())).
				Msg("unexpected message on order entry stream")
			disconnected()
			return nil
		}
	}
}

// responsePump drains the session's outbound queue onto the socket. The
// queue closes when the portal drops or disconnects the session. After a
// write error the pump keeps draining so the queue empties out.
func (s *Server) responsePump(t *tomb.Tomb, conn net.Conn, session *portal.Session) {
	defer conn.Close()
	var dead bool
	for {
		select {
		case <-t.Dying():
			return
		case resp, ok := <-session.Out():
			if !ok {
				return
			}
			if dead {
				continue
			}
			if err := wire.WriteFrame(conn, toWire(resp)); err != nil {
				log.Error().
					Str("session", session.ID().String()).
					Err(err).
					Msg("error writing response")
				conn.Close()
				dead = true
			}
		}
	}
}

func toWire(resp portal.Response) wire.Message {
	switch resp.Type {
	case portal.RespLoginAck:
		return wire.LoginAck{SeqNum: resp.SeqNum}
	case portal.RespLoginRej:
		return wire.LoginRej{SeqNum: resp.SeqNum, Reason: resp.Reason}
	case portal.RespOrderAck:
		return wire.OrderAck{SeqNum: resp.SeqNum, OrderID: resp.OrderID}
	case portal.RespOrderRej:
		return wire.OrderRej{SeqNum: resp.SeqNum, Reason: resp.Reason}
	case portal.RespOrderFill:
		return wire.OrderFill{OrderID: resp.OrderID, Price: resp.Price, Size: resp.Size}
	case portal.RespOrderDead:
		return wire.OrderDead{OrderID: resp.OrderID}
	case portal.RespCancelRej:
		return wire.CancelRej{SeqNum: resp.SeqNum, Reason: resp.Reason}
	}
	log.Panic().Int("responseType", int(resp.Type)).Msg("unmapped portal response type")
	return nil
}
