package sshtunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		input string
		want  Endpoint
	}{
		{input: "example.org", want: Endpoint{Host: "example.org"}},
		{input: "example.org:2222", want: Endpoint{Host: "example.org", Port: 2222}},
		{input: "deploy@example.org:22", want: Endpoint{Host: "example.org", Port: 22, User: "deploy"}},
		{input: "deploy@10.0.0.1", want: Endpoint{Host: "10.0.0.1", User: "deploy"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, *ParseEndpoint(tt.input))
		})
	}
}

func TestTunnelStartStop(t *testing.T) {
	callback, err := HostKeyCallback("")
	require.NoError(t, err)

	tunnel := NewSSHTunnel("deploy@127.0.0.1", nil, callback, "127.0.0.1:8545")
	assert.Equal(t, 22, tunnel.Server.Port)
	assert.Equal(t, "deploy", tunnel.Config.User)

	require.NoError(t, tunnel.Start())
	assert.NotZero(t, tunnel.Local.Port)
	assert.Error(t, tunnel.Start())

	tunnel.Stop()
	require.NoError(t, tunnel.Start())
	tunnel.Stop()
}

func TestHostKeyCallbackMissingFile(t *testing.T) {
	_, err := HostKeyCallback("/nonexistent/known_hosts")
	assert.Error(t, err)
}
