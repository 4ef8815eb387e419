package twitchapi

import (
	"context"
	"errors"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/d3vgru/easy-peasy-bot/chat"
	"github.com/d3vgru/easy-peasy-bot/testutil"
)

type recordingHandler struct {
	ambient  []chat.Message
	mentions []chat.Message
	joins    []string
}

func (h *recordingHandler) HandleAmbient(_ context.Context, m chat.Message) {
	h.ambient = append(h.ambient, m)
}
func (h *recordingHandler) HandleMention(_ context.Context, m chat.Message) {
	h.mentions = append(h.mentions, m)
}
func (h *recordingHandler) HandleJoin(_ context.Context, channel string) {
	h.joins = append(h.joins, channel)
}

type said struct{ channel, text string }

// fakeSession connects, reports the connection and blocks until disconnected.
func fakeSession(t *IRCTransport, sent *[]said, drop <-chan struct{}) func(ctx context.Context) session {
	return func(ctx context.Context) session {
		stop := make(chan struct{})
		return session{
			connect: func() error {
				t.opened()
				select {
				case <-stop:
					return errors.New("client called Disconnect()")
				case <-drop:
					return errors.New("EOF")
				}
			},
			disconnect: func() { close(stop) },
			say:        func(channel, text string) { *sent = append(*sent, said{channel, text}) },
		}
	}
}

func TestDispatchRoutesMentionsAndAmbient(t *testing.T) {
	tr := NewIRCTransport("sorryjbot", "abc", []string{"sorryjb"}, nil)
	h := &recordingHandler{}
	tr.SetHandler(h)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 20, 15, 0, 123000000, time.UTC)

	tr.dispatch(ctx, twitch.PrivateMessage{
		User: twitch.User{ID: "42", Name: "artax"}, Channel: "sorryjb", RoomID: "99",
		Message: "S01E05: The one with the thing", Time: at,
	})
	tr.dispatch(ctx, twitch.PrivateMessage{
		User: twitch.User{ID: "43", Name: "cohaagen"}, Channel: "sorryjb",
		Message: "@SorryJBot replay S01E05", Time: at,
	})
	tr.dispatch(ctx, twitch.PrivateMessage{
		User: twitch.User{ID: "1", Name: "sorryjbot"}, Channel: "sorryjb",
		Message: "[John]: S01E05: The one with the thing", Time: at,
	})

	if len(h.ambient) != 1 {
		t.Fatalf("ambient = %v", h.ambient)
	}
	want := chat.Message{Text: "S01E05: The one with the thing", User: "42", Channel: "sorryjb", Timestamp: "2024-03-01T20:15:00.123000Z"}
	if h.ambient[0] != want {
		t.Errorf("ambient[0] = %+v, want %+v", h.ambient[0], want)
	}
	if len(h.mentions) != 1 || h.mentions[0].Text != "@SorryJBot replay S01E05" {
		t.Errorf("mentions = %v", h.mentions)
	}

	name, err := tr.UserName(ctx, "42")
	if err != nil || name != "artax" {
		t.Errorf("UserName(42) = %q, %v; want artax from chat history", name, err)
	}
	if _, err := tr.UserName(ctx, "777"); err == nil {
		t.Error("unknown user without helix should fail")
	}
}

func TestConnectLifecycle(t *testing.T) {
	tr := NewIRCTransport("sorryjbot", "abc", []string{"sorryjb"}, nil)
	var sent []said
	drop := make(chan struct{})
	tr.newSession = fakeSession(tr, &sent, drop)
	opened := make(chan struct{}, 1)
	tr.OnOpen(func() { opened <- struct{}{} })

	if err := tr.Send(context.Background(), "sorryjb", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Connect = %v, want ErrNotConnected", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- tr.Connect(context.Background()) }()
	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("OnOpen not called")
	}
	if err := tr.Send(context.Background(), "sorryjb", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sent) != 1 || sent[0] != (said{"sorryjb", "hello"}) {
		t.Errorf("sent = %v", sent)
	}

	close(drop)
	select {
	case err := <-errc:
		if err == nil {
			t.Error("Connect should report the dropped session")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after drop")
	}
	if err := tr.Send(context.Background(), "sorryjb", "late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after drop = %v, want ErrNotConnected", err)
	}
}

func TestConnectStopsOnContext(t *testing.T) {
	tr := NewIRCTransport("sorryjbot", "abc", nil, nil)
	var sent []said
	tr.newSession = fakeSession(tr, &sent, make(chan struct{}))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tr.Connect(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Connect() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after cancel")
	}
}

func TestSetTopicUsesStreamTitle(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUserResponse("99", "sorryjb")
	mock.MockModifyChannel()
	tr := NewIRCTransport("sorryjbot", "abc", []string{"sorryjb"}, newTestHelix(mock.URL))
	ctx := context.Background()

	if err := tr.SetTopic(ctx, "sorryjb", "Latest: S01E05 / Code: x / Data: y"); err != nil {
		t.Fatalf("SetTopic: %v", err)
	}
	if got := mock.Title("99"); got != "Latest: S01E05 / Code: x / Data: y" {
		t.Errorf("title = %q", got)
	}

	if err := tr.SetTopic(ctx, "nobody", "t"); err == nil {
		t.Error("unknown broadcaster should fail")
	}

	name, err := tr.UserName(ctx, "99")
	if err != nil || name != "sorryjb" {
		t.Errorf("UserName via helix = %q, %v", name, err)
	}
}

func TestJoinGreets(t *testing.T) {
	tr := NewIRCTransport("sorryjbot", "abc", nil, nil)
	h := &recordingHandler{}
	tr.SetHandler(h)
	tr.joined(context.Background(), "sorryjb")
	if len(h.joins) != 1 || h.joins[0] != "sorryjb" {
		t.Errorf("joins = %v", h.joins)
	}
}
