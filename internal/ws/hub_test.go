package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.out:
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for message")
	}
	return nil
}

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil, "alice")

	hub.Subscribe("loan:1", client)
	hub.Publish("loan:1", []byte(`{"event":"loan.repaid"}`))

	if msg := receive(t, client); string(msg) != `{"event":"loan.repaid"}` {
		t.Fatalf("unexpected payload: %s", string(msg))
	}

	hub.UnsubscribeAll(client)
	if hub.Subscribers("loan:1") != 0 {
		t.Fatalf("expected no subscribers after unsubscribe")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil, "alice")
	hub.Subscribe("loan:1", client)
	client.close()

	hub.Publish("loan:1", []byte("x"))
	if _, ok := <-client.out; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestSubscriptionTopic(t *testing.T) {
	cases := []struct {
		msg  subscribeMessage
		want string
	}{
		{subscribeMessage{Channel: "lending", PositionID: 3}, "lending:3"},
		{subscribeMessage{Channel: "LOAN", PositionID: 4}, "loan:4"},
		{subscribeMessage{Channel: "loan"}, ""},
		{subscribeMessage{Channel: "account"}, "account:alice"},
		{subscribeMessage{Channel: "pool"}, ""},
	}
	for _, tc := range cases {
		if got := subscriptionTopic(tc.msg, "alice"); got != tc.want {
			t.Fatalf("%+v: expected %q, got %q", tc.msg, tc.want, got)
		}
	}
}

type fakeEvents struct {
	events []ledger.Event
}

func (f *fakeEvents) ListEventsSince(_ context.Context, after int64, limit int32) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, ev := range f.events {
		if ev.Seq > after && int32(len(out)) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestNotifierRoutesEvents(t *testing.T) {
	hub := NewHub()
	loanSub := NewClient(nil, "bob")
	accountSub := NewClient(nil, "bob")
	hub.Subscribe("loan:2", loanSub)
	hub.Subscribe(AccountChannel("bob"), accountSub)

	src := &fakeEvents{events: []ledger.Event{
		{Seq: 1, Topic: ledger.TopicLendingCreated, PositionID: 1, Accounts: []ledger.Account{"alice"}, Payload: json.RawMessage(`{}`)},
		{Seq: 2, Topic: ledger.TopicLoanTaken, PositionID: 2, Accounts: []ledger.Account{"bob", "alice"}, Payload: json.RawMessage(`{"amount":"10"}`)},
	}}
	n := NewNotifier(src, hub, time.Millisecond, nil)
	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var got struct {
		Event string          `json:"event"`
		Seq   int64           `json:"seq"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(receive(t, loanSub), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Event != ledger.TopicLoanTaken || got.Seq != 2 || string(got.Data) != `{"amount":"10"}` {
		t.Fatalf("unexpected loan payload: %+v", got)
	}
	receive(t, accountSub)
	if n.lastSeq != 2 {
		t.Fatalf("expected cursor at 2, got %d", n.lastSeq)
	}

	select {
	case msg := <-accountSub.out:
		t.Fatalf("unexpected extra message: %s", msg)
	default:
	}
}
