package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danghamo/isoboard/pkg/config"
)

func TestServerHandler_Info(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ServerConfig
		methods func() []string
		want    ServerInfoResponse
	}{
		{
			name: "should report localhost for a wildcard host",
			cfg:  config.ServerConfig{Host: "0.0.0.0", Port: 8080, Environment: "development"},
			want: ServerInfoResponse{
				Host:        "localhost",
				Port:        8080,
				URL:         "http://localhost:8080",
				Environment: "development",
				BoardWidth:  20,
				BoardHeight: 10,
			},
		},
		{
			name:    "should list registered methods",
			cfg:     config.ServerConfig{Host: "board.example", Port: 9000, Environment: "production"},
			methods: func() []string { return []string{"board.Place", "server.Info"} },
			want: ServerInfoResponse{
				Host:        "board.example",
				Port:        9000,
				URL:         "http://board.example:9000",
				Environment: "production",
				BoardWidth:  20,
				BoardHeight: 10,
				Methods:     []string{"board.Place", "server.Info"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := newRPCMux(t, "server.", NewServerHandler(tt.cfg, 20, 10, tt.methods))
			got := decodeResult[ServerInfoResponse](t, call(t, mux, "server.Info", nil))
			assert.Equal(t, tt.want, got)
		})
	}
}
