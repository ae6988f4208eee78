// Package remote exposes the music players for remote control over
// JSON-RPC. Clients authenticate with the per-player access code shown when
// the bot joins a voice channel, and can subscribe to player state updates.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/kmolski/acmebot/pkg/mods/music"
)

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
	errUnknownAccessCode = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "unknown access code"}
)

// Server serves remote control connections for the music module.
type Server struct {
	logger zerolog.Logger
	music  *music.Module

	mu   sync.Mutex
	subs map[*jsonrpc2.Conn]map[int]bool
}

// NewServer returns a remote control server for the players of m. Player
// state changes are pushed to subscribed connections.
func NewServer(logger zerolog.Logger, m *music.Module) *Server {
	s := &Server{
		logger: logger,
		music:  m,
		subs:   make(map[*jsonrpc2.Conn]map[int]bool),
	}
	m.OnPlayerCreated(func(p *music.Player) {
		p.Observe(s.broadcast)
	})
	m.OnPlayerDeleted(func(p *music.Player) {
		s.dropCode(p.AccessCode())
	})
	return s
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.logger.Debug().Str("peer", conn.RemoteAddr().String()).Msg("remote control connection")
		rpc := jsonrpc2.NewConn(ctx,
			jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{}),
			s.handler())
		go s.reap(rpc)
	}
}

func (s *Server) reap(conn *jsonrpc2.Conn) {
	<-conn.DisconnectNotify()
	s.mu.Lock()
	delete(s.subs, conn)
	s.mu.Unlock()
}

type method func(ctx context.Context, conn *jsonrpc2.Conn, params json.RawMessage) (any, error)

func (s *Server) handler() jsonrpc2.Handler {
	methods := map[string]method{
		"subscribe": s.subscribe,
		"state":     s.state,
		"pause":     s.pause,
		"resume":    s.resume,
		"skip":      s.skip,
		"previous":  s.previous,
		"clear":     s.clear,
		"loop":      s.loop,
		"volume":    s.volume,
		"remove":    s.remove,
		"move":      s.move,
	}
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return fn(ctx, conn, params)
	})
}

type codeParams struct {
	AccessCode int `json:"access_code"`
}

type loopParams struct {
	codeParams
	Enabled bool `json:"enabled"`
}

type volumeParams struct {
	codeParams
	Value int `json:"value"`
}

type offsetParams struct {
	codeParams
	Offset int `json:"offset"`
}

// playerState is the wire form of a player snapshot.
type playerState struct {
	ChannelName string       `json:"channel_name"`
	State       string       `json:"state"`
	Volume      int          `json:"volume"`
	Loop        bool         `json:"loop"`
	Current     *trackInfo   `json:"current,omitempty"`
	Queue       []trackInfo  `json:"queue"`
}

type trackInfo struct {
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

func snapshot(p *music.Player) playerState {
	st := playerState{
		ChannelName: p.ChannelName(),
		State:       p.State().String(),
		Volume:      p.Volume(),
		Loop:        p.Loop(),
		Queue:       []trackInfo{},
	}
	if current, ok := p.Current(); ok {
		info := toTrackInfo(current)
		st.Current = &info
	}
	for _, t := range p.Tracks() {
		st.Queue = append(st.Queue, toTrackInfo(t))
	}
	return st
}

func toTrackInfo(t music.Track) trackInfo {
	return trackInfo{Title: t.Title, Uploader: t.Uploader, URL: t.URL, Duration: t.Duration}
}

func (s *Server) player(params json.RawMessage) (*music.Player, int, error) {
	var p codeParams
	if json.Unmarshal(params, &p) != nil {
		return nil, 0, errInvalidParams
	}
	player, ok := s.music.PlayerByCode(p.AccessCode)
	if !ok {
		return nil, 0, errUnknownAccessCode
	}
	return player, p.AccessCode, nil
}

func (s *Server) subscribe(_ context.Context, conn *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	player, code, err := s.player(params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.subs[conn] == nil {
		s.subs[conn] = make(map[int]bool)
	}
	s.subs[conn][code] = true
	s.mu.Unlock()
	return snapshot(player), nil
}

func (s *Server) state(_ context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	player, _, err := s.player(params)
	if err != nil {
		return nil, err
	}
	return snapshot(player), nil
}

func (s *Server) pause(ctx context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	return s.playerOp(ctx, params, (*music.Player).Pause)
}

func (s *Server) resume(ctx context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	return s.playerOp(ctx, params, (*music.Player).Resume)
}

func (s *Server) skip(ctx context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	return s.playerOp(ctx, params, (*music.Player).Skip)
}

func (s *Server) previous(ctx context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	return s.playerOp(ctx, params, (*music.Player).Previous)
}

func (s *Server) playerOp(ctx context.Context, params json.RawMessage, op func(*music.Player, context.Context) error) (any, error) {
	player, _, err := s.player(params)
	if err != nil {
		return nil, err
	}
	if err := op(player, ctx); err != nil {
		return nil, userError(err)
	}
	return snapshot(player), nil
}

func (s *Server) clear(_ context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	player, _, err := s.player(params)
	if err != nil {
		return nil, err
	}
	player.Clear()
	return snapshot(player), nil
}

func (s *Server) loop(_ context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	var p loopParams
	if json.Unmarshal(params, &p) != nil {
		return nil, errInvalidParams
	}
	player, ok := s.music.PlayerByCode(p.AccessCode)
	if !ok {
		return nil, errUnknownAccessCode
	}
	player.SetLoop(p.Enabled)
	return snapshot(player), nil
}

func (s *Server) volume(ctx context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	var p volumeParams
	if json.Unmarshal(params, &p) != nil {
		return nil, errInvalidParams
	}
	player, ok := s.music.PlayerByCode(p.AccessCode)
	if !ok {
		return nil, errUnknownAccessCode
	}
	if err := player.SetVolume(ctx, p.Value); err != nil {
		return nil, userError(err)
	}
	return snapshot(player), nil
}

func (s *Server) remove(_ context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	var p offsetParams
	if json.Unmarshal(params, &p) != nil {
		return nil, errInvalidParams
	}
	player, ok := s.music.PlayerByCode(p.AccessCode)
	if !ok {
		return nil, errUnknownAccessCode
	}
	if _, err := player.Remove(p.Offset); err != nil {
		return nil, userError(err)
	}
	return snapshot(player), nil
}

func (s *Server) move(_ context.Context, _ *jsonrpc2.Conn, params json.RawMessage) (any, error) {
	var p offsetParams
	if json.Unmarshal(params, &p) != nil {
		return nil, errInvalidParams
	}
	player, ok := s.music.PlayerByCode(p.AccessCode)
	if !ok {
		return nil, errUnknownAccessCode
	}
	if _, err := player.MoveToNext(p.Offset); err != nil {
		return nil, userError(err)
	}
	return snapshot(player), nil
}

// broadcast pushes a state update to every connection subscribed to the
// player's access code.
func (s *Server) broadcast(p *music.Player) {
	state := snapshot(p)
	code := p.AccessCode()
	s.mu.Lock()
	var conns []*jsonrpc2.Conn
	for conn, codes := range s.subs {
		if codes[code] {
			conns = append(conns, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range conns {
		if err := conn.Notify(context.Background(), "update", state); err != nil {
			s.logger.Debug().Err(err).Msg("dropping update notification")
		}
	}
}

// dropCode removes the code from all subscriptions once its player is gone.
func (s *Server) dropCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, codes := range s.subs {
		delete(codes, code)
	}
}

// userError converts player errors into JSON-RPC errors with the message
// intact.
func userError(err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return err
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: err.Error()}
}
