package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWizardConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "loginhelper.json")
	return cfg
}

func TestSetupWizardSavesAnswers(t *testing.T) {
	cfg := newWizardConfig(t)
	answers := strings.Join([]string{
		"s3cret", // secret
		"",       // probe cvar
		"5",      // poll interval
		"",       // probe timeout
		"no",     // debug echo
		"",       // annoy on join
		"",       // database
		"no",     // mqtt
		"debug",  // log level
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers), &out))
	assert.Contains(t, out.String(), "Configuration saved to")

	loaded, err := Load(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", loaded.Session.Secret)
	assert.Equal(t, DefaultProbeCVar, loaded.Session.ProbeCVar)
	assert.Equal(t, 5, loaded.Session.PollIntervalSec)
	assert.Equal(t, 0, loaded.Session.ProbeTimeoutSec)
	assert.False(t, loaded.Session.DebugEcho)
	assert.True(t, loaded.Session.AnnoyOnJoin)
	assert.False(t, loaded.MQTT.Enabled)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestSetupWizardAsksBrokerWhenEnabled(t *testing.T) {
	cfg := newWizardConfig(t)
	answers := strings.Repeat("\n", 7) + "yes\nbroker.local\n1883\nno\nhelpers\n\n"

	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers), &bytes.Buffer{}))
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.local", cfg.MQTT.BrokerURL)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.False(t, cfg.MQTT.UseTLS)
	assert.Equal(t, "helpers", cfg.MQTT.TopicPrefix)
}

func TestSetupWizardInvalidNumberKeepsDefault(t *testing.T) {
	cfg := newWizardConfig(t)
	answers := "\n\nsoon\n" + strings.Repeat("\n", 6)

	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers), &out))
	assert.Equal(t, DefaultPollInterval, cfg.Session.PollIntervalSec)
	assert.Contains(t, out.String(), "Invalid number")
}

func TestSetupWizardGivesUpOnInvalidConfig(t *testing.T) {
	cfg := newWizardConfig(t)
	answers := "\n\n0\n" + strings.Repeat("\n", 6) + "no\n"

	var out bytes.Buffer
	err := RunSetupWizard(cfg, strings.NewReader(answers), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")
	assert.Contains(t, out.String(), "[session.poll_interval_sec]")
}
