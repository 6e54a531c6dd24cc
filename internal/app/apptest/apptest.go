// Package apptest runs the whole chat server in-process on httptest.
package apptest

import (
	"charity-chat/auth"
	"charity-chat/client"
	"charity-chat/internal"
	"charity-chat/internal/app"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const Password = "Sup3r-Secret!pass"

type Server struct {
	App *app.App
	URL string
}

// Config is a server configuration sized for tests, storing in dir.
func Config(dir string) internal.Config {
	return internal.Config{
		LogLevel:             "DEBUG",
		BadgerFilepath:       dir,
		AuthSecret:           "test-secret",
		AuthTokenDuration:    time.Hour,
		BufferSize:           64,
		ConnectionBufferSize: 16,
		SinkTimeout:          time.Second,
		MetricInterval:       time.Second,
		RestartInterval:      50 * time.Millisecond,
		PingInterval:         time.Second,
		PongWait:             5 * time.Second,
		ShutdownTimeout:      time.Second,
		MaxContentLength:     2000,
		EnableModeration:     true,
		CharReplacement:      "*",
	}
}

// Start serves a fresh server until the end of the test.
func Start(t testing.TB) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	a, err := app.New(ctx, Config(t.TempDir()), log)
	require.NoError(t, err)
	a.Start(ctx)
	require.Eventually(t, a.Orchestrator.Running, 2*time.Second, 10*time.Millisecond)

	server := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		a.CloseSockets()
		server.Close()
		a.Stop()
		cancel()
		require.NoError(t, a.Close())
	})
	return &Server{App: a, URL: server.URL}
}

// Donor registers a user account and returns its credentials.
func (s *Server) Donor(t testing.TB, nombre, apellido, email string) client.Credentials {
	t.Helper()
	creds, err := client.RegisterUser(context.Background(), s.URL, auth.RegisterUserRequest{
		Nombre: nombre, Apellido: apellido, Email: email, Password: Password,
	})
	require.NoError(t, err)
	return creds
}

// Charity registers a charity account and returns its credentials.
func (s *Server) Charity(t testing.TB, nombre, email string) client.Credentials {
	t.Helper()
	creds, err := client.RegisterCharity(context.Background(), s.URL, auth.RegisterCharityRequest{
		Nombre: nombre, Email: email, Password: Password, Descripcion: "Ayuda alimentaria",
	})
	require.NoError(t, err)
	return creds
}

// Session opens a client session for creds, closed at the end of the test.
func (s *Server) Session(t testing.TB, creds client.Credentials, opts ...client.Option) *client.Session {
	t.Helper()
	session, err := client.NewSession(context.Background(), s.URL, creds.Token, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}
