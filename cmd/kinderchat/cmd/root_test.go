package cmd

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C2SE29-Capstone2/kinderchat/internal/auth"
	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
	"github.com/C2SE29-Capstone2/kinderchat/internal/store/sqlite"
	transporthttp "github.com/C2SE29-Capstone2/kinderchat/internal/transport/http"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "config.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoginRegistersAndPrintsToken(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{Secret: []byte("cli-secret"), Issuer: "test", Audience: "test", TTL: time.Hour}
	authService := auth.NewService(st, jwtConfig)
	logger := zerolog.Nop()
	cfg := config.Default()
	srv := httptest.NewServer(transporthttp.NewServer(authService, st, &cfg, &logger).Handler)
	t.Cleanup(srv.Close)

	out, err := execute(t, "login", "--api", srv.URL, "-u", "ms.hoa", "-p", "password123", "--register", "teacher")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(jwtConfig, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ms.hoa", claims.Username)
	assert.True(t, claims.IsTeacher())
}

func TestChatRequiresChannelFlags(t *testing.T) {
	_, err := execute(t, "chat", "--token", "x")
	assert.ErrorContains(t, err, "required flag")
}

func TestChatMetricsAddrIsServedBeforeSignIn(t *testing.T) {
	t.Cleanup(func() {
		for _, name := range []string{"classroom", "with", "token", "metrics-addr"} {
			f := chatCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	_, err := execute(t, "chat", "--classroom", "1", "--with", "5", "--token", "x", "--metrics-addr", "not-an-address")
	assert.ErrorContains(t, err, "listen metrics")
}
