package mcpsource

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boat-builder/agentrelay/demoserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectOverHTTP(t *testing.T) {
	srv := httptest.NewServer(demoserver.Handler(demoserver.New(demoserver.Options{})))
	defer func() {
		// SSE streams stay open until their connection goes away
		srv.CloseClientConnections()
		srv.Close()
	}()

	tests := []struct {
		transport string
		path      string
	}{
		{TransportSSE, "/sse"},
		{TransportStreamable, "/mcp"},
	}
	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, err := Connect(ctx, Config{URL: srv.URL + tt.path, Transport: tt.transport})
			require.NoError(t, err)
			defer client.Close()

			tools, err := client.Tools(ctx)
			require.NoError(t, err)
			out, err := findTool(t, tools, "get_secret_word").Execute(ctx, map[string]interface{}{})
			require.NoError(t, err)
			assert.Equal(t, demoserver.DefaultSecretWord, out)
		})
	}
}

func TestConnectUnknownTransport(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "http://localhost", Transport: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown transport")
}
