package realtime

import "testing"

func TestBusSubscribersAreIndependent(t *testing.T) {
	b := NewBus()
	a := b.Subscribe("a")
	c := b.Subscribe("c")

	b.Publish(StatusUpdate{BookingID: "1"})
	b.Publish(StatusUpdate{BookingID: "2"})

	if got := a.Poll(); len(got) != 2 {
		t.Fatalf("a expected 2 events, got %d", len(got))
	}
	// a acknowledging must not hide anything from c
	got := c.Pending()
	if len(got) != 2 || got[0].(StatusUpdate).BookingID != "1" {
		t.Fatalf("c expected both events in order, got %v", got)
	}
	if len(a.Poll()) != 0 {
		t.Fatal("cleared events must not be redelivered")
	}
}

func TestBusClearKeepsLaterEvents(t *testing.T) {
	b := NewBus()
	s := b.Subscribe("s")
	b.Publish(StatusUpdate{BookingID: "1"})
	if len(s.Pending()) != 1 {
		t.Fatal("expected one pending")
	}
	b.Publish(StatusUpdate{BookingID: "2"})
	s.Clear()
	got := s.Pending()
	if len(got) != 1 || got[0].(StatusUpdate).BookingID != "2" {
		t.Fatalf("event published after Pending was lost: %v", got)
	}
}

func TestBusTypeFilterAndReady(t *testing.T) {
	b := NewBus()
	s := b.Subscribe("drivers", TypeDriverStatusUpdate)
	b.Publish(StatusUpdate{BookingID: "1"})
	select {
	case <-s.Ready():
		t.Fatal("filtered event should not signal")
	default:
	}
	b.Publish(DriverStatusUpdate{DriverID: "d1", Status: "online"})
	select {
	case <-s.Ready():
	default:
		t.Fatal("expected ready signal")
	}
	got := s.Poll()
	if len(got) != 1 || got[0].Type() != TypeDriverStatusUpdate {
		t.Fatalf("unexpected batch %v", got)
	}
}

func TestBusCompactsAndSubscribeSeesOnlyNew(t *testing.T) {
	b := NewBus()
	s := b.Subscribe("s")
	b.Publish(BookingAccepted{BookingID: "1"})
	late := b.Subscribe("late")
	if len(late.Pending()) != 0 {
		t.Fatal("late subscriber should start at the end of the log")
	}
	s.Poll()
	if b.Len() != 0 {
		t.Fatalf("log should be compacted once every cursor passed, len=%d", b.Len())
	}
	s.Close()
	late.Close()
	if b.Subscribers() != 0 {
		t.Fatal("expected no subscribers")
	}
	if s.Poll() != nil {
		t.Fatal("closed subscription returns nothing")
	}
}

func TestBusBacklogOverflow(t *testing.T) {
	b := NewBusWithBacklog(2)
	s := b.Subscribe("slow")
	for i := 0; i < 5; i++ {
		b.Publish(BookingAccepted{BookingID: string(rune('a' + i))})
	}
	got := s.Poll()
	if len(got) != 2 || got[0].(BookingAccepted).BookingID != "d" {
		t.Fatalf("expected newest two events, got %v", got)
	}
	if s.Missed() != 3 {
		t.Fatalf("expected 3 missed, got %d", s.Missed())
	}
}

func TestBusOverflowIgnoresFilteredEvents(t *testing.T) {
	b := NewBusWithBacklog(3)
	admin := b.Subscribe("admin", TypeDriverStatusUpdate)
	for i := 0; i < 10; i++ {
		b.Publish(StatusUpdate{BookingID: "b1"})
	}
	if admin.Missed() != 0 {
		t.Fatalf("filtered-out events counted as missed: %d", admin.Missed())
	}
	b.Publish(DriverStatusUpdate{DriverID: "d1", Status: "Available"})
	if got := admin.Poll(); len(got) != 1 {
		t.Fatalf("expected the driver update, got %v", got)
	}

	mixed := b.Subscribe("mixed", TypeDriverStatusUpdate)
	for i := 0; i < 4; i++ {
		b.Publish(DriverStatusUpdate{DriverID: "d1"})
		b.Publish(StatusUpdate{BookingID: "b1"})
	}
	// of the 5 dropped entries, 3 were driver updates
	if mixed.Missed() != 3 {
		t.Fatalf("expected 3 missed driver updates, got %d", mixed.Missed())
	}
}
