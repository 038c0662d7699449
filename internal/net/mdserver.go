package net

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Miloris/stock-exchange-simulation/internal/history"
	"github.com/Miloris/stock-exchange-simulation/internal/portal"
)

const (
	mdWriteWait = 10 * time.Second
	mdPongWait  = 60 * time.Second
	mdPingEvery = (mdPongWait * 9) / 10
)

// MarketDataServer serves the public event stream over websockets. Each
// client gets the full history captured at subscribe time followed by live
// events, JSON-encoded, one frame per event.
type MarketDataServer struct {
	address         string
	portal          *portal.Portal
	subscriberQueue int
	upgrader        websocket.Upgrader
	stop            chan struct{}
}

func NewMarketDataServer(address string, p *portal.Portal, subscriberQueue int) *MarketDataServer {
	return &MarketDataServer{
		address:         address,
		portal:          p,
		subscriberQueue: subscriberQueue,
		upgrader: websocket.Upgrader{
			// The feed is public; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		stop: make(chan struct{}),
	}
}

func (s *MarketDataServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)

	srv := &http.Server{Addr: s.address, Handler: mux}
	go func() {
		<-ctx.Done()
		close(s.stop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("market data server shutdown")
		}
	}()

	log.Info().Str("address", s.address).Msg("market data server running")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MarketDataServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := history.NewSubscriber(s.subscriberQueue)
	if !s.portal.TryEnqueue(portal.SubscribeCmd{Subscriber: sub}, s.stop) {
		conn.Close()
		return
	}

	log.Info().
		Str("remote", conn.RemoteAddr().String()).
		Str("subscriber", sub.ID().String()).
		Msg("market data client connected")

	go s.readPump(conn, sub)
	s.writePump(conn, sub)
}

// readPump discards client frames; its only job is noticing the close.
func (s *MarketDataServer) readPump(conn *websocket.Conn, sub *history.Subscriber) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(mdPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(mdPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.portal.TryEnqueue(portal.UnsubscribeCmd{Subscriber: sub}, s.stop)
			conn.Close()
			return
		}
	}
}

// writePump sends the snapshot, then live events until the hub closes the
// stream. The hub never blocks on this pump: a queue overflow on the live
// channel drops the subscriber instead.
func (s *MarketDataServer) writePump(conn *websocket.Conn, sub *history.Subscriber) {
	ticker := time.NewTicker(mdPingEvery)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	fail := func(err error) {
		log.Info().
			Str("subscriber", sub.ID().String()).
			Err(err).
			Msg("market data client dropped")
		s.portal.TryEnqueue(portal.UnsubscribeCmd{Subscriber: sub}, s.stop)
	}

	// The snapshot is only valid once the portal writer has attached us.
	select {
	case <-sub.Ready():
	case <-s.stop:
		return
	}

	for _, ev := range sub.Snapshot() {
		conn.SetWriteDeadline(time.Now().Add(mdWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			fail(err)
			return
		}
	}

	for {
		select {
		case ev, ok := <-sub.Live():
			if !ok {
				// Stream over: either we lagged out or the hub shut down.
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed")
				if sub.Lagged() {
					msg = websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "lagged out")
				}
				conn.SetWriteDeadline(time.Now().Add(mdWriteWait))
				conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(mdWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				fail(err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(mdWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				fail(err)
				return
			}
		}
	}
}
