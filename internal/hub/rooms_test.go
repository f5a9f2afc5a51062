package hub

import "testing"

func TestRoomsJoinLeave(t *testing.T) {
	r := NewRooms()

	r.Join("s1", 42)
	r.Join("s1", 42)
	if !r.IsMember("s1", 42) {
		t.Fatal("expected membership after join")
	}
	if n := len(r.Members(42)); n != 1 {
		t.Fatalf("members = %d, want 1 (idempotent join)", n)
	}

	r.Leave("s1", 42)
	r.Leave("s1", 42)
	if r.IsMember("s1", 42) {
		t.Fatal("expected no membership after leave")
	}
	if n := len(r.Members(42)); n != 0 {
		t.Fatalf("members = %d, want 0", n)
	}
}

func TestRoomsLeaveUnknownRoom(t *testing.T) {
	r := NewRooms()
	r.Leave("s1", 99)
	if r.IsMember("s1", 99) {
		t.Fatal("phantom membership")
	}
}

func TestRoomsPurge(t *testing.T) {
	r := NewRooms()
	r.Join("s1", 1)
	r.Join("s1", 2)
	r.Join("s2", 2)

	r.Purge("s1")

	if r.IsMember("s1", 1) || r.IsMember("s1", 2) {
		t.Fatal("purge left membership behind")
	}
	if !r.IsMember("s2", 2) {
		t.Fatal("purge removed an unrelated member")
	}
}

func TestRoomRecreatedAfterEmpty(t *testing.T) {
	r := NewRooms()
	r.Join("s1", 42)
	r.Leave("s1", 42)
	// Empty member set is dropped; the next join recreates it implicitly.
	r.Join("s2", 42)
	if !r.IsMember("s2", 42) {
		t.Fatal("room not recreated on join")
	}
}
