package remote

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/kmolski/acmebot/pkg/command"
	"github.com/kmolski/acmebot/pkg/eval"
	"github.com/kmolski/acmebot/pkg/mods/music"
)

type fakeBackend struct{}

func (fakeBackend) PlayTrack(context.Context, music.Track) error    { return nil }
func (fakeBackend) Pause(context.Context) error                     { return nil }
func (fakeBackend) Resume(context.Context) error                    { return nil }
func (fakeBackend) Stop(context.Context) error                      { return nil }
func (fakeBackend) SetVolume(context.Context, int) error            { return nil }
func (fakeBackend) Disconnect(context.Context) error                { return nil }

type fakeSession struct{}

func (fakeSession) VoiceChannel() (string, string, bool) { return "chan1", "general", true }

func (fakeSession) Connect(context.Context, string, func()) (music.AudioBackend, error) {
	return fakeBackend{}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractTracks(context.Context, string) ([]music.Track, error) {
	return nil, nil
}

func (fakeExtractor) Search(context.Context, string, int) ([]music.Track, error) {
	return nil, nil
}

func (fakeExtractor) SearchSoundcloud(context.Context, string, int) ([]music.Track, error) {
	return nil, nil
}

type fakeOutput struct{}

func (fakeOutput) Send(context.Context, string) error            { return nil }
func (fakeOutput) SendBlock(context.Context, string, string) error { return nil }

// joinPlayer creates a player through the music module's join hook and
// returns it with its access code.
func joinPlayer(t *testing.T, m *music.Module) *music.Player {
	t.Helper()
	var created *music.Player
	m.OnPlayerCreated(func(p *music.Player) { created = p })

	r := command.NewRegistry()
	m.Register(r)
	op, ok := r.Resolve("join")
	if !ok {
		t.Fatal("join command not registered")
	}
	ec := &eval.Context{Caller: "tester", Output: fakeOutput{}, Data: fakeSession{}}
	if err := op.RunBeforeHooks(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	if created == nil {
		t.Fatal("no player was created")
	}
	return created
}

type client struct {
	conn *jsonrpc2.Conn

	mu      sync.Mutex
	updates []playerState
}

func (c *client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != "update" || req.Params == nil {
		return
	}
	var state playerState
	if err := json.Unmarshal(*req.Params, &state); err != nil {
		return
	}
	c.mu.Lock()
	c.updates = append(c.updates, state)
	c.mu.Unlock()
}

func (c *client) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	ctx := context.Background()
	serverSide, clientSide := net.Pipe()
	jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		s.handler())
	c := &client{}
	c.conn = jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			c.handle(ctx, conn, req)
			return nil, nil
		}))
	t.Cleanup(func() { c.conn.Close() })
	return c
}

func testServer(t *testing.T) (*Server, *music.Player) {
	m := music.New(zerolog.Nop(), fakeExtractor{}, "")
	s := NewServer(zerolog.Nop(), m)
	p := joinPlayer(t, m)
	return s, p
}

func TestState(t *testing.T) {
	s, p := testServer(t)
	p.Append(music.Track{Title: "first", Uploader: "a", URL: "https://example.com/1", Duration: 65})
	c := dial(t, s)

	var state playerState
	err := c.conn.Call(context.Background(), "state",
		codeParams{AccessCode: p.AccessCode()}, &state)
	if err != nil {
		t.Fatal(err)
	}
	if state.ChannelName != "general" || state.State != "idle" {
		t.Errorf("state = %+v", state)
	}
	if len(state.Queue) != 1 || state.Queue[0].Title != "first" {
		t.Errorf("state queue = %+v", state.Queue)
	}
}

func TestUnknownAccessCode(t *testing.T) {
	s, _ := testServer(t)
	c := dial(t, s)
	var state playerState
	err := c.conn.Call(context.Background(), "state", codeParams{AccessCode: 1}, &state)
	if err == nil {
		t.Fatal("state with a bogus access code returns no error")
	}
}

func TestUnknownMethod(t *testing.T) {
	s, p := testServer(t)
	c := dial(t, s)
	err := c.conn.Call(context.Background(), "reboot", codeParams{AccessCode: p.AccessCode()}, nil)
	if err == nil {
		t.Fatal("unknown method returns no error")
	}
}

func TestPlaybackControl(t *testing.T) {
	s, p := testServer(t)
	p.Append(music.Track{Title: "first"}, music.Track{Title: "second"})
	c := dial(t, s)
	ctx := context.Background()
	code := codeParams{AccessCode: p.AccessCode()}

	var state playerState
	if err := c.conn.Call(ctx, "resume", code, &state); err != nil {
		t.Fatal(err)
	}
	if state.State != "playing" {
		t.Errorf("state after resume = %q, want playing", state.State)
	}
	if err := c.conn.Call(ctx, "pause", code, &state); err != nil {
		t.Fatal(err)
	}
	if state.State != "paused" {
		t.Errorf("state after pause = %q, want paused", state.State)
	}
	if err := c.conn.Call(ctx, "skip", code, &state); err != nil {
		t.Fatal(err)
	}
	if state.Current == nil || state.Current.Title != "second" {
		t.Errorf("current after skip = %+v", state.Current)
	}
}

func TestVolumeValidation(t *testing.T) {
	s, p := testServer(t)
	c := dial(t, s)
	ctx := context.Background()

	var state playerState
	err := c.conn.Call(ctx, "volume",
		volumeParams{codeParams{p.AccessCode()}, 2000}, &state)
	if err == nil {
		t.Fatal("volume 2000 returns no error")
	}
	if err := c.conn.Call(ctx, "volume", volumeParams{codeParams{p.AccessCode()}, 50}, &state); err != nil {
		t.Fatal(err)
	}
	if state.Volume != 50 {
		t.Errorf("volume = %d, want 50", state.Volume)
	}
}

func TestSubscribe_ReceivesUpdates(t *testing.T) {
	s, p := testServer(t)
	c := dial(t, s)

	var state playerState
	if err := c.conn.Call(context.Background(), "subscribe",
		codeParams{AccessCode: p.AccessCode()}, &state); err != nil {
		t.Fatal(err)
	}
	p.Append(music.Track{Title: "first"})

	deadline := time.Now().Add(time.Second)
	for c.updateCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.updateCount() == 0 {
		t.Fatal("no update notification after a queue change")
	}
}

func TestLoopAndMove(t *testing.T) {
	s, p := testServer(t)
	first := music.Track{Title: "first"}
	third := music.Track{Title: "third"}
	p.Append(first, music.Track{Title: "second"}, third)
	c := dial(t, s)
	ctx := context.Background()

	var state playerState
	if err := c.conn.Call(ctx, "loop", loopParams{codeParams{p.AccessCode()}, false}, &state); err != nil {
		t.Fatal(err)
	}
	if state.Loop {
		t.Error("loop is still on after disabling it")
	}
	// Move the third track right after the current one.
	if err := c.conn.Call(ctx, "move", offsetParams{codeParams{p.AccessCode()}, 2}, &state); err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "third", "second"}
	for i, title := range want {
		if state.Queue[i].Title != title {
			t.Fatalf("queue after move = %+v, want order %v", state.Queue, want)
		}
	}
}
