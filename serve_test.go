package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d3vgru/easy-peasy-bot/chat"
	"github.com/d3vgru/easy-peasy-bot/config"
	"github.com/d3vgru/easy-peasy-bot/db"
	"github.com/d3vgru/easy-peasy-bot/ledger"
)

// scriptedTransport opens, delivers one ambient message, then holds the
// session until ctx ends.
type scriptedTransport struct {
	msg chat.Message

	mu      sync.Mutex
	handler chat.Handler
	onOpen  func()
	topics  map[string]string
	sends   []string
}

func (s *scriptedTransport) SetHandler(h chat.Handler) { s.handler = h }
func (s *scriptedTransport) OnOpen(fn func())          { s.onOpen = fn }

func (s *scriptedTransport) Connect(ctx context.Context) error {
	s.onOpen()
	s.handler.HandleAmbient(ctx, s.msg)
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedTransport) Send(_ context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, channel+" "+text)
	return nil
}

func (s *scriptedTransport) SetTopic(_ context.Context, channel, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics == nil {
		s.topics = map[string]string{}
	}
	s.topics[channel] = topic
	return nil
}

func (s *scriptedTransport) UserName(context.Context, string) (string, error) {
	return "artax", nil
}

func (s *scriptedTransport) snapshot() (map[string]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make(map[string]string, len(s.topics))
	for k, v := range s.topics {
		topics[k] = v
	}
	return topics, append([]string(nil), s.sends...)
}

func testServeConfig(dsn string) *config.Config {
	return &config.Config{
		Transport:        config.TransportSlack,
		CanonicalChannel: "C-canon",
		TopicRepoURL:     "https://github.com/d3vgru/easy-peasy-bot",
		TopicDataURL:     "http://localhost/episodes",
		DBDsn:            dsn,
		DBConnectWait:    time.Second,
		HTTPAddr:         "127.0.0.1:0",
	}
}

func announcement() chat.Message {
	return chat.Message{Text: "S01E05: The one with the thing", User: "U1", Channel: "C-other", Timestamp: "1700000000.000100"}
}

// runUntilHandled runs serve until the transport saw the topic and the repost,
// then stops it and returns serve's result.
func runUntilHandled(t *testing.T, cfg *config.Config, tr *scriptedTransport) error {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, tr) }()

	require.Eventually(t, func() bool {
		topics, sends := tr.snapshot()
		return topics["C-canon"] != "" && len(sends) > 0
	}, 15*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
		return nil
	}
}

func TestServeKeepsRunningWithoutDatastore(t *testing.T) {
	cfg := testServeConfig("postgres://recap@127.0.0.1:1/recap?sslmode=disable")
	tr := &scriptedTransport{msg: announcement()}

	err := runUntilHandled(t, cfg, tr)
	require.NoError(t, err)

	topics, sends := tr.snapshot()
	assert.Equal(t, "Latest: S01E05 / Code: https://github.com/d3vgru/easy-peasy-bot / Data: http://localhost/episodes", topics["C-canon"])
	assert.Equal(t, []string{"C-canon [artax]: S01E05: The one with the thing"}, sends)
}

func TestServeRecordsWhenDatastoreIsUp(t *testing.T) {
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "recap.db")
	tr := &scriptedTransport{msg: announcement()}

	require.NoError(t, runUntilHandled(t, testServeConfig(dsn), tr))

	database, dialect, err := db.Connect(dsn, "")
	require.NoError(t, err)
	defer database.Close()
	rec, found, err := ledger.New(database, dialect).FindByProductionCode(context.Background(), "S01E05")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "artax", rec.Author)
	assert.Equal(t, "The one with the thing", rec.Synopsis)
}

func TestOpenLedgerUnreachableStore(t *testing.T) {
	led, ready, err := openLedger(context.Background(), testServeConfig("postgres://recap@127.0.0.1:1/recap?sslmode=disable"))
	require.NoError(t, err)
	defer led.DB().Close()
	assert.False(t, ready)
	assert.NoError(t, led.AuthFailed(), "an unreachable store is not a credential failure")

	_, err = led.Recent(context.Background(), 1)
	var pe *ledger.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestOpenLedgerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := openLedger(ctx, testServeConfig("postgres://recap@127.0.0.1:1/recap?sslmode=disable"))
	assert.ErrorIs(t, err, context.Canceled)
}
