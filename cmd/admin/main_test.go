package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/persistence/indexdb"
	"npcsim.ai/internal/protocol"
)

func TestFilterMessages(t *testing.T) {
	msgs := []protocol.Message{
		{Seq: 1, Kind: protocol.MsgSpeak, AgentID: "guard", Text: "halt"},
		{Seq: 2, Kind: protocol.MsgCombat, AgentID: "hero", Target: "guard", Damage: 4},
		{Seq: 3, Kind: protocol.MsgSpeak, AgentID: "merchant", Text: "wares"},
		{Seq: 4, Kind: protocol.MsgSpeak, AgentID: "guard", Text: "move along"},
	}

	got := filterMessages(msgs, "guard", "", 0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[1].Seq, "target matches too")

	got = filterMessages(msgs, "guard", protocol.MsgSpeak, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(4), got[0].Seq, "limit keeps the newest")

	assert.Len(t, filterMessages(msgs, "", "", 0), 4)
}

func TestPrintMessages_Text(t *testing.T) {
	var buf bytes.Buffer
	msgs := []protocol.Message{{Seq: 1, Tick: 9, Kind: protocol.MsgSpeak, AgentID: "guard", AgentName: "Guard", Text: "halt"}}
	require.NoError(t, printMessages(&buf, msgs, true))
	assert.True(t, strings.HasPrefix(buf.String(), "[9] "))
	assert.Contains(t, buf.String(), "halt")

	buf.Reset()
	require.NoError(t, printMessages(&buf, msgs, false))
	assert.Contains(t, buf.String(), `"agent_id":"guard"`)
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.BeginRun(ctx, indexdb.RunInfo{RunID: "r1", WorldID: "riverside", Seed: 3}))
	idx.RecordMessages("r1", []protocol.Message{
		{Seq: 1, Tick: 1, Kind: protocol.MsgSpeak, AgentID: "guard", Text: "halt"},
		{Seq: 2, Tick: 1, Kind: protocol.MsgSpeak, AgentID: "merchant", Text: "wares"},
	})
	require.NoError(t, idx.WriteTick(protocol.TickRecord{RunID: "r1", Tick: 1, Digest: "d1"}))
	require.NoError(t, idx.Flush(ctx))

	var buf bytes.Buffer
	require.NoError(t, runQuery(ctx, &buf, idx, "runs", dbQuery{}))
	assert.Contains(t, buf.String(), `"r1"`)

	buf.Reset()
	require.NoError(t, runQuery(ctx, &buf, idx, "messages", dbQuery{AgentID: "guard"}))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "halt")

	buf.Reset()
	require.NoError(t, runQuery(ctx, &buf, idx, "digest", dbQuery{Tick: 1}))
	assert.Contains(t, buf.String(), `"digest":"d1"`)

	assert.ErrorIs(t, runQuery(ctx, &buf, idx, "digest", dbQuery{}), errUsage)
	assert.ErrorIs(t, runQuery(ctx, &buf, idx, "messages", dbQuery{}), errUsage)
	assert.ErrorIs(t, runQuery(ctx, &buf, idx, "bogus", dbQuery{}), errUsage)
	assert.ErrorIs(t, runQuery(ctx, &buf, idx, "snapshot", dbQuery{}), indexdb.ErrNotFound)
}

func TestAdminRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/v1/state":
			_, _ = rw.Write([]byte(`{"tick":3}` + "\n"))
		case r.Method == http.MethodPost && r.URL.Path == "/admin/v1/snapshot":
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(`{"ok":false}`))
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	body, err := adminRequest(srv.Client(), http.MethodGet, srv.URL+"/", "/admin/v1/state")
	require.NoError(t, err)
	assert.Equal(t, `{"tick":3}`, body)

	body, err = adminRequest(srv.Client(), http.MethodPost, srv.URL, "/admin/v1/snapshot")
	assert.EqualError(t, err, "status 503")
	assert.Equal(t, `{"ok":false}`, body)
}
