package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleRaw() map[string]any {
	return map[string]any{
		"api": map[string]any{"baseUrl": "https://chat.example.com"},
		"gateway": map[string]any{
			"port": 18790,
			"auth": map[string]any{"mode": "token"},
		},
		"logging": "not-a-map",
	}
}

func TestGetValueAtPath(t *testing.T) {
	tests := []struct {
		name   string
		path   []string
		want   any
		wantOK bool
	}{
		{"leaf", []string{"api", "baseUrl"}, "https://chat.example.com", true},
		{"nested leaf", []string{"gateway", "auth", "mode"}, "token", true},
		{"section", []string{"gateway", "auth"}, map[string]any{"mode": "token"}, true},
		{"missing leaf", []string{"api", "authUrl"}, nil, false},
		{"missing section", []string{"chat", "sendTimeoutSeconds"}, nil, false},
		{"through scalar", []string{"logging", "level"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetValueAtPath(sampleRaw(), tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	raw := sampleRaw()

	SetValueAtPath(raw, []string{"gateway", "port"}, 9000)
	SetValueAtPath(raw, []string{"chat", "sendTimeoutSeconds"}, 30)
	SetValueAtPath(raw, []string{"logging", "level"}, "debug")
	SetValueAtPath(raw, []string{"top"}, true)

	assert.Equal(t, 9000, raw["gateway"].(map[string]any)["port"])
	assert.Equal(t, "token", raw["gateway"].(map[string]any)["auth"].(map[string]any)["mode"], "siblings kept")
	assert.Equal(t, map[string]any{"sendTimeoutSeconds": 30}, raw["chat"])
	assert.Equal(t, map[string]any{"level": "debug"}, raw["logging"], "scalar replaced by a section")
	assert.Equal(t, true, raw["top"])
}

func TestUnsetValueAtPath(t *testing.T) {
	raw := sampleRaw()

	assert.True(t, UnsetValueAtPath(raw, []string{"gateway", "auth", "mode"}))
	assert.Equal(t, map[string]any{}, raw["gateway"].(map[string]any)["auth"])
	assert.Equal(t, 18790, raw["gateway"].(map[string]any)["port"])

	assert.False(t, UnsetValueAtPath(raw, []string{"gateway", "auth", "mode"}), "already gone")
	assert.False(t, UnsetValueAtPath(raw, []string{"chat", "x"}))
	assert.False(t, UnsetValueAtPath(raw, []string{"logging", "level"}))
}

func TestKnownPath(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"api", true},
		{"api.baseUrl", true},
		{"gateway.auth.mode", true},
		{"gateway.controlUi.allowedOrigins", true},
		{"logging.consoleStyle", true},
		{"api.baseurl", false},
		{"gateway.port.value", false},
		{"models", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path, err := ParseConfigPath(tt.key)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, KnownPath(path))
		})
	}
}
