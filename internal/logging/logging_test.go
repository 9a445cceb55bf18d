package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Level: "info", Format: "json"}.Validate())
	assert.NoError(t, Config{Level: "debug", Format: "Console"}.Validate())
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("command executed", zap.String("command", "START"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "command executed", entry["msg"])
	assert.Equal(t, "START", entry["command"])
	assert.Contains(t, entry, "ts")
}

func TestNewObserved(t *testing.T) {
	logger, logs := NewObserved()
	logger.Warn("buffer overflow", zap.Int("dropped", 1))

	require.Equal(t, 1, logs.FilterMessage("buffer overflow").Len())
	assert.Equal(t, int64(1), logs.All()[0].ContextMap()["dropped"])
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)
	r.Logn("Connecting... ")
	r.Log("done")
	assert.Equal(t, "Connecting... done\n", buf.String())
}

func TestFanoutDispatchesToAllSinks(t *testing.T) {
	var f Fanout
	a, b := &Recorder{}, &Recorder{}
	f.Add(a)
	f.Add(b)
	f.Add(nil)

	f.Logf("speed %d", 3)
	f.Logn("partial ")
	f.Log("line")

	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"speed 3", "partial line"}, a.Lines())
	assert.Equal(t, a.Lines(), b.Lines())
}

func TestFanoutConcurrentUse(t *testing.T) {
	var f Fanout
	rec := &Recorder{}
	f.Add(rec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.Log("x")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Add(&Recorder{})
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Lines(), 400)
}
