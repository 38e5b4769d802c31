package lcpevents_test

import (
	"testing"
	"time"

	"github.com/lanchat/lcpnode/internal/lcpevents"
)

func TestLogAndPoll(t *testing.T) {
	l := lcpevents.NewLogger()
	sub := l.Subscribe(lcpevents.PeerDiscovered | lcpevents.MessageReceived)
	defer l.Unsubscribe(sub)

	l.Log(lcpevents.FileSent, "ignored")
	l.Log(lcpevents.PeerDiscovered, map[string]string{"peer": "bob"})

	ev, err := sub.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != lcpevents.PeerDiscovered {
		t.Fatalf("got %v, want PeerDiscovered (FileSent should have been filtered out)", ev.Type)
	}
}

func TestPollTimesOut(t *testing.T) {
	l := lcpevents.NewLogger()
	sub := l.Subscribe(lcpevents.AllEvents)
	defer l.Unsubscribe(sub)

	if _, err := sub.Poll(10 * time.Millisecond); err != lcpevents.ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestBufferedSubscriptionSince(t *testing.T) {
	l := lcpevents.NewLogger()
	sub := l.Subscribe(lcpevents.AllEvents)
	buffered := lcpevents.NewBufferedSubscription(sub, 16)

	l.Log(lcpevents.MessageSent, 1)
	l.Log(lcpevents.MessageReceived, 2)

	var got []lcpevents.Event
	deadline := time.After(time.Second)
	for len(got) < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for buffered events")
		default:
			got = buffered.Since(-1, nil, 0)
		}
	}
	if got[0].Type != lcpevents.MessageSent || got[1].Type != lcpevents.MessageReceived {
		t.Fatalf("unexpected event order: %+v", got)
	}
}
