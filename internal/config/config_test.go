package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	engine "github.com/hanpama/gqlws/internal/engine"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/graphql", cfg.Server.Path)
	require.Equal(t, "/subscriptions", cfg.Subscriptions.Path)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load("testdata/gqlws.toml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 3*time.Second, cfg.Server.Timeout)
	require.Equal(t, []string{"Authorization"}, cfg.Server.MetadataHeaders)
	require.Equal(t, "/graphiql", cfg.GraphiQL.Path)
	require.Equal(t, 15*time.Second, cfg.Subscriptions.KeepAlive)
	require.Equal(t, int64(1<<20), cfg.Subscriptions.ReadLimit, "unset keys keep defaults")
	require.Equal(t, "redis", cfg.PubSub.Backend)
	require.Equal(t, "acme", cfg.Context["tenant"])
	require.Equal(t, map[string]any{"depth": int64(5)}, cfg.Context["limits"])
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load("testdata/gqlws.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, 5*time.Second, cfg.Server.Timeout)
	require.False(t, cfg.Subscriptions.Enabled)
	require.Equal(t, "eu", cfg.Context["region"])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/missing.toml")
	require.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "cfg.ini")
	require.NoError(t, os.WriteFile(bad, []byte("x=1"), 0o644))
	_, err = Load(bad)
	require.ErrorContains(t, err, "unsupported config format")

	broken := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[server"), 0o644))
	_, err = Load(broken)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GQLWS_SERVER_ADDR":              ":1234",
		"GQLWS_PUBSUB_BACKEND":           "redis",
		"GQLWS_PUBSUB_REDIS_URL":         "redis://r:6379",
		"GQLWS_SUBSCRIPTIONS_KEEP_ALIVE": "20s",
		"GQLWS_GRAPHIQL_ENABLED":         "false",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	require.Equal(t, ":1234", cfg.Server.Addr)
	require.Equal(t, "redis://r:6379", cfg.PubSub.RedisURL)
	require.Equal(t, 20*time.Second, cfg.Subscriptions.KeepAlive)
	require.False(t, cfg.GraphiQL.Enabled)

	cfg = Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "GQLWS_SUBSCRIPTIONS_KEEP_ALIVE" {
			return "soon"
		}
		return ""
	})
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(""))
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GQLWS_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GQLWS_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "loaded", os.Getenv("GQLWS_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*File){
		"empty addr":        func(c *File) { c.Server.Addr = "" },
		"relative path":     func(c *File) { c.Server.Path = "graphql" },
		"same ws path":      func(c *File) { c.Subscriptions.Path = c.Server.Path },
		"negative body":     func(c *File) { c.Server.MaxBodyBytes = -1 },
		"negative ka":       func(c *File) { c.Subscriptions.KeepAlive = -time.Second },
		"bad log format":    func(c *File) { c.Log.Format = "xml" },
		"redis without url": func(c *File) { c.PubSub.Backend = "redis" },
		"unknown backend":   func(c *File) { c.PubSub.Backend = "kafka" },
		"graphiql path":     func(c *File) { c.GraphiQL.Path = "ide" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

type nopEngine struct{ engine.Engine }

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Context["k"] = "v"
	eng := nopEngine{}
	st := cfg.Resolve(eng)

	got, err := st.Resolve(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.Equal(t, eng, got.Engine)
	require.Equal(t, "/graphql", got.Path)
	require.Equal(t, "/subscriptions", got.SubscriptionsPath)
	require.NotNil(t, got.GraphiQL)
	require.Equal(t, "v", got.Context["k"])

	cfg.GraphiQL.Enabled = false
	cfg.Subscriptions.Enabled = false
	got, _ = cfg.Resolve(eng).Resolve(nil)
	require.Nil(t, got.GraphiQL)
	require.Empty(t, got.SubscriptionsPath)

	fn := ResolverFunc(func(*http.Request) (Resolved, error) { return Resolved{Path: "/x"}, nil })
	got, _ = fn.Resolve(nil)
	require.Equal(t, "/x", got.Path)
}
