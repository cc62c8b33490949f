package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playforge/matchmaker/internal/matching"
	"github.com/playforge/matchmaker/internal/protocol"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func TestPublisher_PerPlayerSubjects(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, nil)
	ctx := context.Background()

	p.QueueJoined(ctx, matching.JoinedEvent{PlayerID: "p1", ModeID: "duel", EstimatedWait: 45 * time.Second})
	p.MatchFound(ctx, matching.MatchFoundEvent{PlayerID: "p1", MatchID: "m-1", ModeID: "duel", Map: "arena-pit", ServerName: "Frankfurt 1"})
	p.PlayerPenalized(ctx, matching.PenaltyEvent{PlayerID: "p2", MatchID: "m-1", Reason: matching.PenaltyReasonNoConfirm, Duration: 5 * time.Minute})

	require.Len(t, conn.msgs, 3)
	assert.Equal(t, "matchmaking.joined.p1", conn.msgs[0].subject)
	assert.Equal(t, "matchmaking.match.found.p1", conn.msgs[1].subject)
	assert.Equal(t, "matchmaking.penalty.p2", conn.msgs[2].subject)

	var joined protocol.JoinedEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &joined))
	assert.Equal(t, int64(45000), joined.EstimatedWaitMillis)

	var found protocol.MatchFoundEvent
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &found))
	assert.Equal(t, "Frankfurt 1", found.ServerName)

	var penalty protocol.PenaltyEvent
	require.NoError(t, json.Unmarshal(conn.msgs[2].data, &penalty))
	assert.Equal(t, int64(300000), penalty.DurationMillis)
	assert.Equal(t, "match_not_confirmed", penalty.Reason)
}

func TestPublisher_MatchSubjects(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, nil)
	ctx := context.Background()

	m := &matching.Match{ID: "m-1", ModeID: "duel", Status: matching.StatusPending, MapID: "arena-pit"}
	p.MatchCreated(ctx, matching.MatchCreatedEvent{Match: m})
	p.MatchStarted(ctx, matching.MatchStartedEvent{MatchID: "m-1", ModeID: "duel", Map: "arena-pit"})
	p.MatchCancelled(ctx, matching.MatchCancelledEvent{MatchID: "m-2", Confirmed: []string{"a"}, Unconfirmed: []string{"b"}})

	require.Len(t, conn.msgs, 3)
	assert.Equal(t, SubjectMatchCreated, conn.msgs[0].subject)
	assert.Equal(t, SubjectMatchStarted, conn.msgs[1].subject)
	assert.Equal(t, SubjectMatchCancelled, conn.msgs[2].subject)

	var cancelled protocol.MatchCancelledEvent
	require.NoError(t, json.Unmarshal(conn.msgs[2].data, &cancelled))
	assert.Equal(t, []string{"b"}, cancelled.Unconfirmed)
}

func TestPublisher_PublishErrorIsSwallowed(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, nil)
	assert.NotPanics(t, func() {
		p.QueueLeft(context.Background(), matching.LeftEvent{PlayerID: "p1", ModeID: "duel"})
	})
}

func TestPublisher_Launch(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, nil)

	m := &matching.Match{ID: "m-3", ModeID: "duel", Status: matching.StatusReady, MapID: "arena-small"}
	require.NoError(t, p.Launch(context.Background(), m))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, SubjectMatchReady, conn.msgs[0].subject)

	var view protocol.MatchView
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &view))
	assert.Equal(t, "m-3", view.ID)
	assert.Equal(t, "ready", view.Status)

	failing := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, nil)
	assert.Error(t, failing.Launch(context.Background(), m))
}
