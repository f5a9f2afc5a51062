package hub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/frame"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     []string
	failSend bool
	closed   bool
}

func (c *fakeConn) TrySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("backpressure")
	}
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type fixture struct {
	router *Router
}

func newFixture() *fixture {
	return &fixture{router: NewRouter(NewRegistry(), NewRooms())}
}

func (f *fixture) bind(t *testing.T, sid SessionID, user domain.User) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	_, cancel := context.WithCancel(context.Background())
	f.router.Registry.Bind(sid, &user, conn, cancel)
	return conn
}

var (
	alice = domain.User{ID: 7, FullName: "Alice", CompanyName: "Acme"}
	bob   = domain.User{ID: 9, FullName: "Bob", CompanyName: "Bolts Inc"}
	carol = domain.User{ID: 3, FullName: "Carol", CompanyName: "CNC Co"}
)

func TestChatFanoutExcludesSender(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	bobConn := f.bind(t, "b1", bob)

	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})
	f.router.HandleRaw("b1", []byte("CHAT|42|hello"))

	got := aliceConn.frames()
	if len(got) != 1 || got[0] != "chat|Bob (Bolts Inc): hello" {
		t.Fatalf("alice frames = %v", got)
	}
	if n := len(bobConn.frames()); n != 0 {
		t.Fatalf("sender received own echo from server: %d frames", n)
	}
}

func TestJoinLeaveIdempotent(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	f.bind(t, "b1", bob)

	// Double join then double leave must net out to non-membership.
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("a1", frame.Leave{Room: 42})
	f.router.HandleFrame("a1", frame.Leave{Room: 42})

	f.router.HandleFrame("b1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Chat{Room: 42, Text: "anyone?"})

	if n := len(aliceConn.frames()); n != 0 {
		t.Fatalf("non-member received %d frames", n)
	}

	// Re-join makes delivery resume.
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Chat{Room: 42, Text: "there you are"})
	if n := len(aliceConn.frames()); n != 1 {
		t.Fatalf("member received %d frames, want 1", n)
	}
}

func TestMembershipNotRetainedAcrossReconnect(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	f.bind(t, "b1", bob)

	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})
	f.router.HandleRaw("b1", []byte("CHAT|42|hello"))
	if n := len(aliceConn.frames()); n != 1 {
		t.Fatalf("alice frames before reconnect = %d", n)
	}

	// Bob drops and comes back on a fresh session without re-JOIN.
	f.router.Disconnect("b1")
	f.bind(t, "b2", bob)
	f.router.HandleRaw("b2", []byte("CHAT|42|back again"))

	if n := len(aliceConn.frames()); n != 1 {
		t.Fatalf("alice received a frame from a non-member after reconnect: %d", n)
	}
}

func TestDisconnectPurgesMembership(t *testing.T) {
	f := newFixture()
	f.bind(t, "a1", alice)
	bobConn := f.bind(t, "b1", bob)

	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})
	f.router.Disconnect("a1")

	if f.router.Rooms.IsMember("a1", 42) {
		t.Fatal("membership survived disconnect")
	}
	f.router.HandleFrame("b1", frame.Chat{Room: 42, Text: "ghost check"})
	if n := len(bobConn.frames()); n != 0 {
		t.Fatalf("bob frames = %d", n)
	}
}

func TestCallRelay(t *testing.T) {
	f := newFixture()
	carolConn := f.bind(t, "c1", carol)
	bobConn := f.bind(t, "b1", bob)

	// Carol rings Bob.
	f.router.HandleRaw("c1", []byte("CALL|9|42"))
	got := bobConn.frames()
	if len(got) != 1 || got[0] != "rtc-call-request|3|Carol|42" {
		t.Fatalf("bob frames = %v", got)
	}

	// Bob accepts toward Carol.
	f.router.HandleRaw("b1", []byte("ACCEPT|3"))
	got = carolConn.frames()
	if len(got) != 1 || got[0] != "rtc-call-accepted|9" {
		t.Fatalf("carol frames = %v", got)
	}

	// Negotiation blobs relay verbatim with the sender identity attached.
	f.router.HandleRaw("c1", []byte(`RTC|9|{"type":"offer","sdp":"v=0|m=video"}`))
	got = bobConn.frames()
	if len(got) != 2 || got[1] != `rtc-signal|3|{"type":"offer","sdp":"v=0|m=video"}` {
		t.Fatalf("bob frames = %v", got)
	}
}

func TestUnicastMultiTab(t *testing.T) {
	f := newFixture()
	f.bind(t, "c1", carol)
	tab1 := f.bind(t, "b1", bob)
	tab2 := f.bind(t, "b2", bob)

	f.router.HandleFrame("c1", frame.Call{Target: bob.ID, Room: 42})

	for name, conn := range map[string]*fakeConn{"tab1": tab1, "tab2": tab2} {
		if n := len(conn.frames()); n != 1 {
			t.Errorf("%s received %d frames, want 1", name, n)
		}
	}
}

func TestUnicastOfflineDropped(t *testing.T) {
	f := newFixture()
	carolConn := f.bind(t, "c1", carol)

	// Nobody home: frame is dropped, nothing echoes back, nothing panics.
	f.router.HandleFrame("c1", frame.Call{Target: 99, Room: 42})
	f.router.HandleFrame("c1", frame.Signal{Target: 99, Payload: "x"})

	if n := len(carolConn.frames()); n != 0 {
		t.Fatalf("carol frames = %d", n)
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	f.bind(t, "b1", bob)
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})

	f.router.HandleRaw("b1", []byte("BOGUS|1|2"))
	f.router.HandleRaw("b1", []byte("CHAT|notanumber|hi"))
	f.router.HandleRaw("b1", []byte(""))

	if n := len(aliceConn.frames()); n != 0 {
		t.Fatalf("malformed input reached the room: %d frames", n)
	}
}

func TestServerBoundTagFromClientDropped(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	f.bind(t, "b1", bob)
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})

	f.router.HandleRaw("b1", []byte("chat|forged line"))
	f.router.HandleRaw("b1", []byte("rtc-call-accepted|7"))

	if n := len(aliceConn.frames()); n != 0 {
		t.Fatalf("server-bound tag was relayed: %v", aliceConn.frames())
	}
}

func TestSlowRoomMemberKicked(t *testing.T) {
	f := newFixture()
	slow := &fakeConn{failSend: true}
	kicked := make(chan struct{})
	_, cancel := context.WithCancel(context.Background())
	f.router.Registry.Bind("a1", &alice, slow, func() {
		cancel()
		close(kicked)
	})
	f.bind(t, "b1", bob)

	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Chat{Room: 42, Text: "flood"})

	select {
	case <-kicked:
	default:
		t.Fatal("slow member was not cancelled")
	}
}

func TestFrameOrderPreservedPerSender(t *testing.T) {
	f := newFixture()
	aliceConn := f.bind(t, "a1", alice)
	f.bind(t, "b1", bob)
	f.router.HandleFrame("a1", frame.Join{Room: 42})
	f.router.HandleFrame("b1", frame.Join{Room: 42})

	for _, msg := range []string{"one", "two", "three"} {
		f.router.HandleFrame("b1", frame.Chat{Room: 42, Text: msg})
	}
	got := aliceConn.frames()
	if len(got) != 3 {
		t.Fatalf("got %d frames", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if !strings.HasSuffix(got[i], want) {
			t.Fatalf("frame %d = %q, want suffix %q", i, got[i], want)
		}
	}
}
