package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voice-order/internal/config"
)

func runSimulate(t *testing.T, input string) string {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetArgs([]string{"simulate", "--quiet"})
	root.SetIn(strings.NewReader(input))
	root.SetOut(&out)
	root.SetErr(&out)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestSimulate_FullOrder(t *testing.T) {
	out := runSimulate(t, strings.Join([]string{
		"two pepperoni pizzas",
		"",
		"that's all",
		"my address is 123 main street springfield",
		"yes",
	}, "\n"))

	assert.Contains(t, out, "ordering> ")
	assert.Contains(t, out, "ordering> Added 2 Pepperoni Pizza. Anything else?")
	assert.Contains(t, out, "address> ")
	assert.Contains(t, out, "Shall I place the order?")
	assert.Contains(t, out, "tracking> ")
	assert.NotContains(t, out, "call ended")
}

func TestSimulate_EscalationEndsCall(t *testing.T) {
	out := runSimulate(t, "i have a problem with my order\nget me a real person\nstill there?\n")
	assert.Contains(t, out, "support> ")
	assert.Contains(t, out, "-- transferred to a person --")
	assert.Contains(t, out, "-- call ended --")
	assert.NotContains(t, out, "still there?")
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(config.Config{SessionStore: "memory"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = openStore(config.Config{SessionStore: "bolt", SessionBoltPath: t.TempDir() + "/data/sessions.bolt"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = openStore(config.Config{SessionStore: "redis"})
	assert.Error(t, err)
}

func TestBuildSpeaker_NoKeys(t *testing.T) {
	assert.Nil(t, buildSpeaker(config.Config{}))
	assert.NotNil(t, buildSpeaker(config.Config{ElevenLabsKey: "k", ElevenLabsVoiceID: "v"}))
}
