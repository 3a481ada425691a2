package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volvoxlabs/weft/internal/engine"
	"github.com/volvoxlabs/weft/internal/eventbus"
	"github.com/volvoxlabs/weft/internal/persistence"
	"github.com/volvoxlabs/weft/pkg/api"
	"github.com/volvoxlabs/weft/pkg/registry"
)

func newTestServer(t *testing.T) (*httptest.Server, api.Engine) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(api.ToolDescriptor{
		Name: "greet",
		Input: api.Schema{Fields: []api.FieldSpec{
			{Name: "name", Type: api.FieldString, Required: true},
		}},
		Output: api.Schema{Fields: []api.FieldSpec{
			{Name: "greeting", Type: api.FieldString, Required: true},
		}},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"greeting": "hello " + args["name"].(string)}, nil
		},
	}))
	require.NoError(t, reg.Register(api.ToolDescriptor{
		Name: "gate",
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}))

	bus := eventbus.New()
	mem := persistence.NewInMemoryStore()
	eng := engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Graphs:    mem,
			Instances: mem,
			Events:    persistence.NewMemoryEventStore(),
		},
		Registry: reg,
		Sink:     bus,
	})

	srv := httptest.NewServer(NewServer(eng, bus, nil).Echo())
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

const greetGraph = `{
	"name": "greeting",
	"start": "greet",
	"nodes": [
		{"id": "greet", "tool": "greet",
		 "inputs": {"name": "name"},
		 "outputs": {"greeting": "greeting"},
		 "terminal": true}
	]
}`

func TestRegisterAndRunOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	res := postJSON(t, srv.URL+"/graphs", greetGraph)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res.Body.Close()

	// Duplicate registration conflicts.
	res = postJSON(t, srv.URL+"/graphs", greetGraph)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, srv.URL+"/runs", `{"graph": "greeting", "input": {"name": "ada"}}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	submitted := decode[map[string]any](t, res)
	runID := submitted["run_id"].(string)
	require.NotEmpty(t, runID)

	var run runView
	require.Eventually(t, func() bool {
		getRes, err := http.Get(srv.URL + "/runs/" + runID)
		if err != nil {
			return false
		}
		run = decode[runView](t, getRes)
		return run.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, api.StatusSucceeded, run.Status)
	assert.Equal(t, "hello ada", run.Context["greeting"])
	require.Len(t, run.History, 1)

	// Event history is queryable after the run ends.
	evRes, err := http.Get(srv.URL + "/runs/" + runID + "/events")
	require.NoError(t, err)
	events := decode[[]api.ExecutionEvent](t, evRes)
	require.NotEmpty(t, events)
	assert.Equal(t, api.EventRunSucceeded, events[len(events)-1].Kind)
}

func TestRegisterGraphRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t)

	res := postJSON(t, srv.URL+"/graphs", `{"name": "bad", "start": "ghost", "nodes": [{"id": "a", "tool": "greet", "terminal": true}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	body := decode[map[string]any](t, res)
	assert.Equal(t, "GraphInvalid", body["kind"])
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/runs/nope")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestResumeOverHTTP(t *testing.T) {
	srv, eng := newTestServer(t)

	g := api.WorkflowGraph{
		Name:  "gated",
		Start: "gate",
		Nodes: []api.NodeSpec{{ID: "gate", Tool: "gate", AwaitInput: true, Terminal: true}},
	}
	require.NoError(t, eng.RegisterGraph(g))

	res := postJSON(t, srv.URL+"/runs", `{"graph": "gated"}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	submitted := decode[map[string]any](t, res)
	runID := submitted["run_id"].(string)

	require.Eventually(t, func() bool {
		inst, err := eng.GetRun(context.Background(), runID)
		return err == nil && inst.Status == api.StatusSuspended
	}, 2*time.Second, 5*time.Millisecond)

	res = postJSON(t, srv.URL+"/runs/"+runID+"/resume", `{"input": {"approved": true}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	run := decode[runView](t, res)
	assert.Equal(t, api.StatusSucceeded, run.Status)

	// Resuming again conflicts.
	res = postJSON(t, srv.URL+"/runs/"+runID+"/resume", `{}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()
}

func TestCancelAndPurgeOverHTTP(t *testing.T) {
	srv, eng := newTestServer(t)

	g := api.WorkflowGraph{
		Name:  "gated",
		Start: "gate",
		Nodes: []api.NodeSpec{{ID: "gate", Tool: "gate", AwaitInput: true, Terminal: true}},
	}
	require.NoError(t, eng.RegisterGraph(g))

	res := postJSON(t, srv.URL+"/runs", `{"graph": "gated"}`)
	submitted := decode[map[string]any](t, res)
	runID := submitted["run_id"].(string)

	require.Eventually(t, func() bool {
		inst, err := eng.GetRun(context.Background(), runID)
		return err == nil && inst.Status == api.StatusSuspended
	}, 2*time.Second, 5*time.Millisecond)

	res = postJSON(t, srv.URL+"/runs/"+runID+"/cancel", ``)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	res.Body.Close()

	inst, err := eng.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusCancelled, inst.Status)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/runs/"+runID, nil)
	require.NoError(t, err)
	delRes, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delRes.StatusCode)
	delRes.Body.Close()

	getRes, err := http.Get(srv.URL + "/runs/" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getRes.StatusCode)
	getRes.Body.Close()
}

func TestListRunsFilter(t *testing.T) {
	srv, eng := newTestServer(t)

	var g api.WorkflowGraph
	require.NoError(t, json.Unmarshal([]byte(greetGraph), &g))
	require.NoError(t, eng.RegisterGraph(g))

	inst, err := eng.Run(context.Background(), "greeting", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, inst.Status)

	res, err := http.Get(srv.URL + "/runs?graph=greeting&status=SUCCEEDED")
	require.NoError(t, err)
	runs := decode[[]runView](t, res)
	require.Len(t, runs, 1)

	res, err = http.Get(srv.URL + "/runs?status=FAILED")
	require.NoError(t, err)
	empty := decode[[]runView](t, res)
	assert.Empty(t, empty)
}

func TestEventStreamSSE(t *testing.T) {
	srv, eng := newTestServer(t)

	var g api.WorkflowGraph
	require.NoError(t, json.Unmarshal([]byte(greetGraph), &g))
	require.NoError(t, eng.RegisterGraph(g))

	inst, err := eng.Run(context.Background(), "greeting", "", map[string]any{"name": "ada"})
	require.NoError(t, err)

	// The run already ended, so replay serves the whole history and the
	// stream terminates.
	res, err := http.Get(srv.URL + "/runs/" + inst.ID + "/events?stream=1&replay=1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	buf := make([]byte, 64*1024)
	var sb strings.Builder
	for {
		n, readErr := res.Body.Read(buf)
		sb.Write(buf[:n])
		if readErr != nil {
			break
		}
	}
	body := sb.String()
	assert.Contains(t, body, "event: NODE_STARTED")
	assert.Contains(t, body, "event: RUN_SUCCEEDED")
	assert.Contains(t, body, `"run_id":"`+inst.ID+`"`)
}
