package bus

import (
	"testing"
	"time"
)

func makeTurn(seq int, speaker, text string) Turn {
	return Turn{
		Seq:       seq,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("console")

	b.Publish(TurnEvent{SessionID: "s1", Turn: makeTurn(1, "Vera", "hello")})

	select {
	case ev := <-sub:
		if ev.Turn.Speaker != "Vera" {
			t.Errorf("speaker = %q, want Vera", ev.Turn.Speaker)
		}
		if ev.Turn.Seq != 1 {
			t.Errorf("seq = %d, want 1", ev.Turn.Seq)
		}
	default:
		t.Fatal("published turn not buffered for subscriber")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	first := b.Subscribe("console")
	second := b.Subscribe("telegram")

	b.Publish(TurnEvent{SessionID: "s1", Turn: makeTurn(1, "Moss", "hi")})

	for name, sub := range map[string]<-chan TurnEvent{"console": first, "telegram": second} {
		select {
		case ev := <-sub:
			if ev.Turn.Speaker != "Moss" {
				t.Errorf("%s: speaker = %q, want Moss", name, ev.Turn.Speaker)
			}
		default:
			t.Fatalf("%s: turn not buffered", name)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("slow")

	// Nobody drains; overflow the buffer and count what survives.
	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(TurnEvent{Turn: makeTurn(i, "Vera", "x")})
	}

	drained := 0
	for {
		select {
		case <-sub:
			drained++
		default:
			if drained != subscriberBufSize {
				t.Errorf("drained %d events, want %d", drained, subscriberBufSize)
			}
			return
		}
	}
}

func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	b := NewBus()
	// "slow" never drains; overflow its buffer so Publish hits the drop path.
	b.Subscribe("slow")
	fast := b.Subscribe("fast")

	total := subscriberBufSize + 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			select {
			case <-fast:
			case <-time.After(2 * time.Second):
				t.Errorf("fast subscriber starved at event %d", i)
				return
			}
		}
	}()

	// Paced so the fast consumer keeps up; only the undrained slow
	// subscriber overflows.
	for i := 0; i < total; i++ {
		b.Publish(TurnEvent{Turn: makeTurn(i, "Moss", "y")})
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fast subscriber did not receive all events")
	}
}

func TestBufferedTurnsSurviveUnsubscribe(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("console")

	for i := 1; i <= 3; i++ {
		b.Publish(TurnEvent{Turn: makeTurn(i, "Vera", "x")})
	}
	b.Unsubscribe("console")

	// A consumer draining the closed stream still sees every buffered
	// turn before the close. This is what lets the show flush its last
	// exchanges during teardown.
	got := 0
	for range sub {
		got++
	}
	if got != 3 {
		t.Errorf("drained %d turns after Unsubscribe, want 3", got)
	}
}

func TestUnsubscribeClosesStream(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("console")
	b.Unsubscribe("console")

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after Unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestResubscribeReplacesStream(t *testing.T) {
	b := NewBus()
	old := b.Subscribe("console")
	fresh := b.Subscribe("console")

	if _, ok := <-old; ok {
		t.Error("previous stream should be closed on resubscribe")
	}

	b.Publish(TurnEvent{Turn: makeTurn(1, "Vera", "x")})
	select {
	case ev := <-fresh:
		if ev.Turn.Seq != 1 {
			t.Errorf("seq = %d, want 1", ev.Turn.Seq)
		}
	default:
		t.Fatal("replacement stream did not receive the turn")
	}
}
