package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/servers/registry"
	"github.com/avrabe/raco/service/dao"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewFlow = `
name: review
steps:
  - name: version
    type: human_input
    prompt: Which version?
  - name: publish
    action: nop.nop
    dependsOn: [version]
`

type connector struct {
	connected    []string
	disconnected []string
}

func (c *connector) Connect(_ context.Context, info *registry.ServerInfo) error {
	c.connected = append(c.connected, info.Name)
	return nil
}

func (c *connector) Disconnect(_ context.Context, name string) error {
	c.disconnected = append(c.disconnected, name)
	return nil
}

type fixture struct {
	server    *Server
	runtime   *raco.Runtime
	connector *connector
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	metrics := NewMetrics()
	srv, err := raco.New(raco.WithEventSinks(metrics))
	require.NoError(t, err)
	rt := srv.Runtime()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rt.Start(ctx))
	t.Cleanup(func() {
		_ = rt.Shutdown(context.Background())
		cancel()
	})
	c := &connector{}
	return &fixture{
		server:    New(rt, registry.New(), append([]Option{WithMetrics(metrics), WithConnector(c)}, opts...)...),
		runtime:   rt,
		connector: c,
	}
}

func (f *fixture) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestServer_Root(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RACO Web API", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Servers(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/servers", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, `{"name":"files","server_type":"filesystem","uri":"http://127.0.0.1:4000/mcp"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := &registry.ServerInfo{}
	decode(t, rec, info)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "filesystem", info.Type)
	assert.False(t, info.Active)

	rec = f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, `{"server_type":"git"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/servers/"+info.ID+"/activate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, info)
	assert.True(t, info.Active)
	assert.Equal(t, []string{"files"}, f.connector.connected)

	rec = f.do(t, http.MethodPost, "/api/servers/"+info.ID+"/deactivate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"files"}, f.connector.disconnected)

	rec = f.do(t, http.MethodPost, "/api/servers/missing/activate", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var list []*registry.ServerInfo
	decode(t, f.do(t, http.MethodGet, "/api/servers", "", ""), &list)
	assert.Len(t, list, 1)

	rec = f.do(t, http.MethodDelete, "/api/servers/"+info.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/servers/"+info.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Workflows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/workflows?start=true", "application/yaml", reviewFlow)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := map[string]string{}
	decode(t, rec, &created)
	id := created["id"]
	require.NotEmpty(t, id)

	instance, err := f.runtime.Wait(ctx, id, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, execution.WorkflowWaitingForInput, instance.Status)

	rec = f.do(t, http.MethodGet, "/api/workflows/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Pending []struct {
			StepName string `json:"stepName"`
			Prompt   string `json:"prompt"`
		} `json:"pending"`
	}
	decode(t, rec, &got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "waitingForInput", got.Status)
	require.Len(t, got.Pending, 1)
	assert.Equal(t, "Which version?", got.Pending[0].Prompt)

	rec = f.do(t, http.MethodPost, "/api/workflows/"+id+"/steps/version/decision", echo.MIMEApplicationJSON, `{"approved":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/workflows/"+id+"/steps/missing/input", echo.MIMEApplicationJSON, `{"input":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/workflows/"+id+"/steps/version/input", echo.MIMEApplicationJSON, `{"input":"2.0.0"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	instance, err = f.runtime.Wait(ctx, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowCompleted, instance.Status)

	rec = f.do(t, http.MethodPost, "/api/workflows/"+id+"/start", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/workflows/"+id+"/cancel", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/workflows/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var list []map[string]interface{}
	decode(t, f.do(t, http.MethodGet, "/api/workflows?status=completed", "", ""), &list)
	assert.Len(t, list, 1)
	decode(t, f.do(t, http.MethodGet, "/api/workflows?status=running", "", ""), &list)
	assert.Len(t, list, 0)

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `raco_engine_events_total{type="workflow.created"} 1`)
	assert.Contains(t, rec.Body.String(), `raco_http_requests_total`)
}

func TestServer_CreateWorkflowJSON(t *testing.T) {
	f := newFixture(t)

	body := `{"definition":"name: quick\nsteps:\n  - name: only\n    action: nop.nop\n","start":true}`
	rec := f.do(t, http.MethodPost, "/api/workflows", echo.MIMEApplicationJSON, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := map[string]string{}
	decode(t, rec, &created)
	instance, err := f.runtime.Wait(context.Background(), created["id"], 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowCompleted, instance.Status)

	rec = f.do(t, http.MethodPost, "/api/workflows", echo.MIMEApplicationJSON, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/workflows", "application/yaml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cyclic := `
name: cyclic
steps:
  - name: a
    action: nop.nop
    dependsOn: [b]
  - name: b
    action: nop.nop
    dependsOn: [a]
`
	rec = f.do(t, http.MethodPost, "/api/workflows", "application/yaml", cyclic)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CrossOrigin(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	testCases := []struct {
		description string
		opts        []Option
		method      string
		target      string
		origin      string
		expectCode  int
		expectCORS  string
	}{
		{description: "mcp without origin", method: http.MethodPost, target: "/mcp", expectCode: http.StatusAccepted},
		{description: "mcp from foreign page", method: http.MethodPost, target: "/mcp", origin: "http://evil.example", expectCode: http.StatusForbidden},
		{description: "api from foreign page", method: http.MethodGet, target: "/api/servers", origin: "http://evil.example", expectCode: http.StatusForbidden},
		{description: "mcp from allowed origin", opts: []Option{WithAllowOrigins("http://ui.example")}, method: http.MethodPost, target: "/mcp", origin: "http://ui.example", expectCode: http.StatusAccepted},
		{description: "api from allowed origin", opts: []Option{WithAllowOrigins("http://ui.example")}, method: http.MethodGet, target: "/api/servers", origin: "http://ui.example", expectCode: http.StatusOK, expectCORS: "http://ui.example"},
		{description: "api from other origin", opts: []Option{WithAllowOrigins("http://ui.example")}, method: http.MethodGet, target: "/api/servers", origin: "http://evil.example", expectCode: http.StatusForbidden},
	}
	for _, tc := range testCases {
		f := newFixture(t, append(tc.opts, WithMCPHandler(mcp))...)
		req := httptest.NewRequest(tc.method, tc.target, nil)
		if tc.origin != "" {
			req.Header.Set(echo.HeaderOrigin, tc.origin)
		}
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, tc.expectCode, rec.Code, tc.description)
		assert.Equal(t, tc.expectCORS, rec.Header().Get(echo.HeaderAccessControlAllowOrigin), tc.description)
	}
}

func TestServer_RegisterStdioServer(t *testing.T) {
	body := `{"name":"shell","server_type":"process","uri":"sh -c id"}`

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "http(s)")
	rec = f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, `{"name":"local","uri":"file:///bin/sh"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var list []*registry.ServerInfo
	decode(t, f.do(t, http.MethodGet, "/api/servers", "", ""), &list)
	assert.Empty(t, list)

	f = newFixture(t, WithStdioServers(true))
	rec = f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// vanishingDAO drops a server right after it is activated, as a concurrent
// unregister would.
type vanishingDAO struct {
	dao.Service[string, registry.ServerInfo]
}

func (d *vanishingDAO) Save(ctx context.Context, info *registry.ServerInfo) error {
	if info.Active {
		return d.Service.Delete(ctx, info.ID)
	}
	return d.Service.Save(ctx, info)
}

func TestServer_ActivateVanishedServer(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(registry.WithDAO(&vanishingDAO{Service: registry.NewMemoryDAO()}))
	f.server = New(f.runtime, reg, WithConnector(f.connector))

	rec := f.do(t, http.MethodPost, "/api/servers", echo.MIMEApplicationJSON, `{"name":"files"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := &registry.ServerInfo{}
	decode(t, rec, info)

	rec = f.do(t, http.MethodPost, "/api/servers/"+info.ID+"/activate", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.connector.connected)
}
