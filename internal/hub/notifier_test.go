package hub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"mfglink/realtime/internal/domain"
)

func TestNotifierPush(t *testing.T) {
	reg := NewRegistry()
	conn := &fakeConn{}
	_, cancel := context.WithCancel(context.Background())
	reg.Bind("s1", &domain.User{ID: 7, FullName: "Alice", CompanyName: "Acme"}, conn, cancel)

	n := NewNotifier(reg)
	delivered, err := n.Push(domain.Notification{ID: 1, RecipientID: 7, Message: "Your quote was accepted", LinkURL: "/orders/5"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	got := conn.frames()
	if len(got) != 1 || !strings.HasPrefix(got[0], "notification|") {
		t.Fatalf("frames = %v", got)
	}
	var rec domain.Notification
	if err := json.Unmarshal([]byte(strings.TrimPrefix(got[0], "notification|")), &rec); err != nil {
		t.Fatalf("record json: %v", err)
	}
	if rec.Message != "Your quote was accepted" || rec.RecipientID != 7 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestNotifierOfflineSkipped(t *testing.T) {
	n := NewNotifier(NewRegistry())
	delivered, err := n.Push(domain.Notification{ID: 2, RecipientID: 99, Message: "nobody home"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

func TestNotifierMultiTab(t *testing.T) {
	reg := NewRegistry()
	user := &domain.User{ID: 7, FullName: "Alice", CompanyName: "Acme"}
	tab1, tab2 := &fakeConn{}, &fakeConn{}
	_, cancel1 := context.WithCancel(context.Background())
	_, cancel2 := context.WithCancel(context.Background())
	reg.Bind("s1", user, tab1, cancel1)
	reg.Bind("s2", user, tab2, cancel2)

	n := NewNotifier(reg)
	delivered, err := n.Push(domain.Notification{ID: 3, RecipientID: 7, Message: "hi"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
}
