package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return m
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"console", "msg=hello"},
		{"", `"msg":"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: "info", Format: tt.format, Output: &buf})
			l.Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want substring %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	if GetLevel() != "warn" {
		t.Errorf("GetLevel() = %q, want warn", GetLevel())
	}

	SetLevel("debug")
	l.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("debug not logged after SetLevel: %q", buf.String())
	}
}

func TestSecureRedaction(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		name   string
		secure bool
		attr   slog.Attr
		want   string
	}{
		{"pepper", true, slog.String("pepper", "s3cr3t"), redactedValue},
		{"conn info", true, slog.String("conn_info", "host=db password=x"), redactedValue},
		{"private key path", true, slog.String("private_key_file", "/etc/hub.key"), redactedValue},
		{"encryption key", true, slog.String("encryption_key", "k"), redactedValue},
		{"public key shown", true, slog.String("public_key", "ed25519:ab"), "ed25519:ab"},
		{"byte secret", true, slog.Any("secret", []byte{1, 2}), redactedValue},
		{"empty secret kept", true, slog.String("password", ""), ""},
		{"plain value", true, slog.String("listen", ":9000"), ":9000"},
		{"insecure", false, slog.String("pepper", "s3cr3t"), "s3cr3t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: "info", Secure: tt.secure, Output: &buf})
			l.Info("test", tt.attr)
			m := decode(t, &buf)
			if got, _ := m[tt.attr.Key].(string); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.attr.Key, got, tt.want)
			}
		})
	}
}

func TestSecureRedaction_URLValue(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Secure: true, Output: &buf})
	l.Info("test", slog.String("target", "postgres://hub:hunter2@db:5432/auth"))
	m := decode(t, &buf)
	got, _ := m["target"].(string)
	if strings.Contains(got, "hunter2") {
		t.Errorf("password leaked: %q", got)
	}
	if !strings.Contains(got, "db:5432") {
		t.Errorf("host lost: %q", got)
	}
}

func TestSecureRedaction_Groups(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Secure: true, Output: &buf})
	l.Info("test", slog.Group("auth", slog.String("pepper", "p"), slog.String("backend", "badger")))
	m := decode(t, &buf)
	auth, _ := m["auth"].(map[string]any)
	if auth["pepper"] != redactedValue {
		t.Errorf("auth.pepper = %v, want redacted", auth["pepper"])
	}
	if auth["backend"] != "badger" {
		t.Errorf("auth.backend = %v, want badger", auth["backend"])
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != Default() {
		t.Error("FromContext() without logger is not the default")
	}

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Output: &buf}))
	ctx = WithConn(ctx, "01HZX", 42)
	FromContext(ctx).Info("frame")

	m := decode(t, &buf)
	if m["conn"] != "01HZX" {
		t.Errorf("conn = %v, want 01HZX", m["conn"])
	}
	if m["origin"] != float64(42) {
		t.Errorf("origin = %v, want 42", m["origin"])
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != Default() {
		t.Error("OrDefault(nil) is not the default logger")
	}
	l := slog.Default()
	if OrDefault(l) != l {
		t.Error("OrDefault(l) replaced l")
	}
}
