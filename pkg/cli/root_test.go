package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/auditlog/pkg/config"
)

const testConfig = `
application:
  name: blog
capture:
  sources:
    - name: articles
      primaryKey: [id]
      columns:
        - {name: id, type: integer}
        - {name: title, type: string}
        - {name: published, type: boolean}
        - {name: modified, type: datetime}
      associations:
        - {name: Tags, property: tags}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auditlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, configPath string, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{
		ConfigPath:   configPath,
		OutputWriter: buf,
		Input:        strings.NewReader(stdin),
		Logger:       zaptest.NewLogger(t),
	})
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(config.PathEnv, "/etc/auditlog/config.yaml")
	cfg := DefaultConfig()
	assert.Equal(t, "/etc/auditlog/config.yaml", cfg.ConfigPath)
	assert.NotNil(t, cfg.OutputWriter)
	assert.NotNil(t, cfg.Input)
}

func TestRootCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "missing.yaml"), "", "validate")
	assert.ErrorContains(t, err, "trying to open auditlog config file")
}

func TestRootCommand_ConfigFlagWins(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "/nonexistent/auditlog.yaml", "", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path+": ok")
}

func TestRootCommand_DebugFromEnvironment(t *testing.T) {
	t.Setenv(DebugEnv, "yes")
	root := NewRootCommand(Config{ConfigPath: writeConfig(t, testConfig), OutputWriter: &bytes.Buffer{}, Logger: zaptest.NewLogger(t)})
	root.SetArgs([]string{"validate"})
	require.NoError(t, root.Execute())

	rt, err := getRuntime(root)
	require.NoError(t, err)
	assert.True(t, rt.debug)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, writeConfig(t, testConfig), "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok (persister: log, sources: 1, enrichers: 2)")
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, writeConfig(t, "persister:\n  type: rabbitmq\n"), "", "validate")
	assert.ErrorContains(t, err, "invalid auditlog config")
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "", "", "unknown-command")
	assert.Error(t, err)
}
