// Package turn embeds a TURN relay so clients behind symmetric NATs can
// still reach each other.
package turn

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pion/turn/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// ListenAddr is the UDP address to bind, e.g. "0.0.0.0:3478".
	ListenAddr string
	Realm      string
	// PublicIP is advertised in relayed candidates.
	PublicIP string
	// Users maps usernames to plain passwords.
	Users map[string]string
}

type Server struct {
	srv  *turn.Server
	conn net.PacketConn

	closeOnce sync.Once
	closeErr  error
}

func Start(cfg Config) (*Server, error) {
	relayIP := net.ParseIP(cfg.PublicIP)
	if relayIP == nil {
		return nil, fmt.Errorf("turn: invalid public ip %q", cfg.PublicIP)
	}
	if len(cfg.Users) == 0 {
		return nil, errors.New("turn: no users configured")
	}

	keys := make(map[string][]byte, len(cfg.Users))
	for user, pass := range cfg.Users {
		keys[user] = turn.GenerateAuthKey(user, cfg.Realm, pass)
	}

	conn, err := net.ListenPacket("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("turn: listen %s: %w", cfg.ListenAddr, err)
	}

	gen := &turn.RelayAddressGeneratorStatic{
		RelayAddress: relayIP,
		Address:      "0.0.0.0",
	}
	srv, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username string, realm string, srcAddr net.Addr) ([]byte, bool) {
			if key, ok := keys[username]; ok {
				return key, true
			}
			log.Debug().Str("module", "turn").Str("user", username).Str("addr", srcAddr.String()).Msg("unknown user")
			return nil, false
		},
		PacketConnConfigs: []turn.PacketConnConfig{{
			PacketConn:            conn,
			RelayAddressGenerator: gen,
		}},
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("turn: %w", err)
	}

	log.Info().Str("module", "turn").
		Str("addr", conn.LocalAddr().String()).
		Str("realm", cfg.Realm).
		Str("public_ip", cfg.PublicIP).
		Msg("TURN server started")
	return &Server{srv: srv, conn: conn}, nil
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *Server) Allocations() int { return s.srv.AllocationCount() }

// Close stops the server; the listener is closed with it.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.srv.Close()
		log.Info().Str("module", "turn").Msg("TURN server stopped")
	})
	return s.closeErr
}
