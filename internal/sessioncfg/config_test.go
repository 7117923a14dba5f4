package sessioncfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "127.0.0.1:19144", cfg.Addr())
	assert.Nil(t, cfg.Protocol)
}

func TestLoadOverridesHostAndPort(t *testing.T) {
	path := writeConfig(t, "host: 10.0.0.5\nport: 9229\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:9229", cfg.Addr())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestTimeoutUnsetReturnsZero(t *testing.T) {
	path := writeConfig(t, "host: 127.0.0.1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestTimeoutParsesDuration(t *testing.T) {
	path := writeConfig(t, "request_timeout: 2500ms\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 2500_000_000, int(d))
}

func TestTimeoutInvalidIsError(t *testing.T) {
	path := writeConfig(t, "request_timeout: not-a-duration\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.Timeout()
	assert.Error(t, err)
}

func TestProtocolInfoConversion(t *testing.T) {
	path := writeConfig(t, "protocol:\n  version: 5\n  target_module_uuid: mod-1\n  passcode: secret\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Protocol)

	info := cfg.ProtocolInfo()
	require.NotNil(t, info)
	assert.Equal(t, 5, info.Version)
	assert.Equal(t, "mod-1", info.TargetModuleUUID)
	assert.Equal(t, "secret", info.Passcode)
}

func TestProtocolInfoNilWhenSectionAbsent(t *testing.T) {
	path := writeConfig(t, "host: 127.0.0.1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.ProtocolInfo())
}

func TestLoadBreakpoints(t *testing.T) {
	path := writeConfig(t, "a.js:\n  - line: 10\n  - line: 20\n    column: 4\nb.js:\n  - line: 1\n")
	bps, err := LoadBreakpoints(path)
	require.NoError(t, err)
	require.Len(t, bps["a.js"], 2)
	assert.Equal(t, 10, bps["a.js"][0].Line)
	assert.Equal(t, 20, bps["a.js"][1].Line)
	assert.Equal(t, 4, bps["a.js"][1].Column)
	require.Len(t, bps["b.js"], 1)
}

func TestLoadBreakpointsMissingFile(t *testing.T) {
	_, err := LoadBreakpoints(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}
