package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
[log.slog]
level = "error"

[server]
listen = "127.0.0.1:0"
base_path = "/api"

[metrics]
enabled = true

[stats]
enabled = false

[history]
sinks = ["sqlite://%s"]
%s
`, filepath.ToSlash(filepath.Join(dir, "history.db")), extra)
	p := filepath.Join(dir, "jitter.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"jitter", "serve", "replay", "notify", "batch", "status", "consumption", "reset"} {
		assert.Contains(t, out, name)
	}
}

func TestNotifyRequiresCategory(t *testing.T) {
	_, err := execute(t, "notify", "--id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")
}

func TestNotifyRejectsBadInputBeforeDialing(t *testing.T) {
	_, err := execute(t, "notify", "--category", "pinch", "--id", "1", "--api-url", "http://127.0.0.1:1/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gesture category")

	_, err = execute(t, "notify", "--category", "circle", "--id", "1", "--phase", "hold", "--api-url", "http://127.0.0.1:1/api")
	require.Error(t, err)
}

func TestClientCommandUnreachable(t *testing.T) {
	_, err := execute(t, "status", "--api-url", "http://127.0.0.1:1/api", "--api-timeout", "200ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestServeAndClientCommands(t *testing.T) {
	cfgPath := writeConfig(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, ServeFlags{ConfigPath: cfgPath}, func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	api := "http://" + addr + "/api"

	_, err := execute(t, "notify", "--api-url", api, "--category", "circle", "--id", "1", "--phase", "start", "--progress", "1.2", "--radius", "25")
	require.NoError(t, err)
	_, err = execute(t, "notify", "--api-url", api, "--category", "circle", "--id", "2", "--phase", "start", "--progress", "0.1")
	require.NoError(t, err)

	out, err := execute(t, "batch", "--api-url", api, "--category", "circle", "--min-progress", "1")
	require.NoError(t, err)
	var circles []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &circles))
	require.Len(t, circles, 1)
	assert.EqualValues(t, 1, circles[0]["id"])

	out, err = execute(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"history"`)
	assert.Contains(t, out, `"screen_tap"`)

	out, err = execute(t, "consumption", "--api-url", api, "--category", "swipe", "--enabled=false")
	require.NoError(t, err)
	assert.Contains(t, out, `"swipe": false`)

	out, err = execute(t, "reset", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, "reset\n", out)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "jitter_gesture_delivered_total")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeBadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(p, []byte("[server]\nbase_path = \"api\"\n"), 0o600))
	err := runServe(context.Background(), ServeFlags{ConfigPath: p}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestServeReleasesMetricsListenerOnStartupError(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := probe.Addr().String()
	require.NoError(t, probe.Close())

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	p := filepath.Join(t.TempDir(), "jitter.toml")
	body := fmt.Sprintf("[log.slog]\nlevel = \"error\"\n\n[metrics]\nenabled = true\nlisten = %q\n\n[stats]\nenabled = false\n", metricsAddr)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	err = runServe(context.Background(), ServeFlags{ConfigPath: p, Listen: busy.Addr().String()}, nil)
	require.Error(t, err)

	again, err := net.Listen("tcp", metricsAddr)
	require.NoError(t, err, "metrics listener still bound after failed startup")
	_ = again.Close()
}

func TestReplayCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")
	stream := filepath.Join(t.TempDir(), "session.jsonl")
	lines := []string{
		`# two circles and a key tap`,
		`{"at":0,"category":"circle","phase":"start","id":1,"progress":0.2,"radius":10}`,
		`{"at":1,"category":"circle","phase":"update","id":1,"progress":1.1,"radius":10}`,
		`{"at":2,"category":"circle","phase":"stop","id":1,"progress":1.4,"radius":10}`,
		`{"at":2,"category":"key_tap","phase":"stop","id":5}`,
	}
	require.NoError(t, os.WriteFile(stream, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out, err := execute(t, "--config", cfgPath, "replay", "--file", stream, "--producer-fps", "200", "--consumer-fps", "50")
	require.NoError(t, err)
	assert.Contains(t, out, `"frames"`)
	assert.Contains(t, out, `"key_tap"`)

	_, err = execute(t, "--config", cfgPath, "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stream file")
}
