package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
)

var mint = solana.Pubkey{0xAA}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestEmitter_SequenceAndIDs(t *testing.T) {
	rec := NewRecorder()
	em := NewEmitter(rec, 10, testLogger())
	ctx := context.Background()

	first := em.Emit(ctx, mint, 100, domain.VoteCast{ProposalID: 1, VoteAmount: 5, Support: true, Timestamp: 100})
	second := em.Emit(ctx, mint, 101, domain.ProposalCreated{ProposalID: 2, StartTime: 101})

	if first.Sequence != 11 || second.Sequence != 12 || em.Sequence() != 12 {
		t.Errorf("sequences %d, %d, last %d", first.Sequence, second.Sequence, em.Sequence())
	}
	if len(first.ID) != 64 || first.ID == second.ID {
		t.Errorf("unexpected ids %q %q", first.ID, second.ID)
	}

	got := rec.Events()
	if len(got) != 2 || got[0].Type != domain.EventVoteCast || got[1].Type != domain.EventProposalCreated {
		t.Fatalf("unexpected recorded events: %+v", got)
	}

	var vote domain.VoteCast
	if err := json.Unmarshal(got[0].Payload, &vote); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if vote.ProposalID != 1 || vote.VoteAmount != 5 || !vote.Support {
		t.Errorf("unexpected payload: %+v", vote)
	}

	if n := len(rec.OfType(domain.EventProposalCreated)); n != 1 {
		t.Errorf("OfType returned %d events", n)
	}
}

func TestEmitter_ConcurrentEmitsReachSinkInSequenceOrder(t *testing.T) {
	rec := NewRecorder()
	em := NewEmitter(rec, 0, testLogger())
	ctx := context.Background()

	const emitters = 32
	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			em.Emit(ctx, mint, int64(i), domain.VoteCast{ProposalID: uint64(i)})
		}(i)
	}
	wg.Wait()

	got := rec.Events()
	if len(got) != emitters {
		t.Fatalf("recorded %d events, want %d", len(got), emitters)
	}
	for i, env := range got {
		if env.Sequence != uint64(i+1) {
			t.Fatalf("event %d has sequence %d", i, env.Sequence)
		}
	}
}

func TestEmitter_SinkErrorDoesNotFail(t *testing.T) {
	failing := SinkFunc(func(context.Context, Envelope) error { return errors.New("down") })
	rec := NewRecorder()
	em := NewEmitter(Fanout{failing, rec}, 0, testLogger())

	env := em.Emit(context.Background(), mint, 1, domain.RewardsClaimed{Amount: 3})
	if env.Sequence != 1 {
		t.Errorf("sequence = %d", env.Sequence)
	}
	if len(rec.Events()) != 1 {
		t.Error("fanout must continue past a failing sink")
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	f := Fanout{
		SinkFunc(func(context.Context, Envelope) error { return errA }),
		SinkFunc(func(context.Context, Envelope) error { return errB }),
	}
	err := f.Publish(context.Background(), Envelope{})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
}

func TestHub_StreamsMatchingEvents(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?mint=" + mint.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	other, _ := NewEnvelope(1, solana.Pubkey{0xBB}, 5, domain.RewardsClaimed{Amount: 1})
	want, _ := NewEnvelope(2, mint, 6, domain.RewardsClaimed{Amount: 2})
	ctx := context.Background()
	if err := hub.Publish(ctx, other); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := hub.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 2 || got.Mint != mint || got.ID != want.ID {
		t.Errorf("unexpected envelope: %+v", got)
	}
}

func TestHub_RejectsInvalidMint(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?mint=not-base58!"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("expected 400 response, got %+v", resp)
	}
}
