package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8000, WriteTimeout: 35 * time.Minute},
		Storage: StorageConfig{OutputPath: "/data/output"},
		Proxy: ProxyConfig{
			AllowDirect:     true,
			BestMinAttempts: 3,
			BestPromote:     2,
		},
		Conflict: ConflictConfig{
			Enabled:         true,
			RefreshInterval: 5 * time.Minute,
			ProbeURL:        "https://httpbin.org/ip",
			ProbeTimeout:    10 * time.Second,
			DNSTimeout:      5 * time.Second,
			Confirmations:   1,
		},
		Extract:   ExtractConfig{Timeout: 45 * time.Second, MaxAttempts: 5},
		Transcode: TranscodeConfig{Timeout: 10 * time.Minute, MaxAttempts: 3, Concurrency: 2, DefaultMP3: "192", DefaultMP4: "720"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "missing output path", mutate: func(c *Config) { c.Storage.OutputPath = "" }, wantErr: true},
		{
			name: "no network path",
			mutate: func(c *Config) {
				c.Proxy.Disabled = true
				c.Proxy.DirectDisabled = true
			},
			wantErr: true,
		},
		{name: "proxy disabled only", mutate: func(c *Config) { c.Proxy.Disabled = true }},
		{name: "zero best min attempts", mutate: func(c *Config) { c.Proxy.BestMinAttempts = 0 }, wantErr: true},
		{name: "zero refresh interval", mutate: func(c *Config) { c.Conflict.RefreshInterval = 0 }, wantErr: true},
		{
			name: "detection disabled ignores interval",
			mutate: func(c *Config) {
				c.Conflict.Enabled = false
				c.Conflict.RefreshInterval = 0
			},
		},
		{name: "zero confirmations", mutate: func(c *Config) { c.Conflict.Confirmations = 0 }, wantErr: true},
		{name: "non-http probe url", mutate: func(c *Config) { c.Conflict.ProbeURL = "ftp://x" }, wantErr: true},
		{name: "zero extract attempts", mutate: func(c *Config) { c.Extract.MaxAttempts = 0 }, wantErr: true},
		{name: "zero transcode attempts", mutate: func(c *Config) { c.Transcode.MaxAttempts = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Transcode.Concurrency = 0 }, wantErr: true},
		{name: "write timeout cuts off last transcode attempt", mutate: func(c *Config) { c.Server.WriteTimeout = 15 * time.Minute }, wantErr: true},
		{name: "write timeout exactly one probe short", mutate: func(c *Config) { c.Server.WriteTimeout = 30*time.Minute + 14*time.Second }, wantErr: true},
		{name: "write timeout covers convert budget", mutate: func(c *Config) { c.Server.WriteTimeout = 30*time.Minute + 15*time.Second }},
		{
			name: "write timeout cuts off last extract attempt",
			mutate: func(c *Config) {
				c.Server.WriteTimeout = 40 * time.Minute
				c.Extract.Timeout = 10 * time.Minute
			},
			wantErr: true,
		},
		{
			name: "probe excluded when detection disabled",
			mutate: func(c *Config) {
				c.Conflict.Enabled = false
				c.Server.WriteTimeout = 30 * time.Minute
			},
		},
		{name: "zero write timeout skips budget check", mutate: func(c *Config) { c.Server.WriteTimeout = 0 }},
		{name: "bad mp3 quality", mutate: func(c *Config) { c.Transcode.DefaultMP3 = "999" }, wantErr: true},
		{name: "bad mp4 quality", mutate: func(c *Config) { c.Transcode.DefaultMP4 = "4k" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Budgets(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 30*time.Minute+15*time.Second, cfg.ConvertBudget())
	assert.Equal(t, 225*time.Second+15*time.Second, cfg.ValidateBudget())

	cfg.Extract.YouTubeAPIKey = "k"
	cfg.Extract.YouTubeAPITimeout = 10 * time.Second
	assert.Equal(t, 250*time.Second, cfg.ValidateBudget())
}

func TestLoad_DefaultsAreConsistent(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfg.Server.WriteTimeout, cfg.ConvertBudget())
	assert.GreaterOrEqual(t, cfg.Server.WriteTimeout, cfg.ValidateBudget())
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{name: "default", cfg: ServerConfig{Host: "0.0.0.0", Port: 8000}, want: "0.0.0.0:8000"},
		{name: "localhost", cfg: ServerConfig{Host: "localhost", Port: 8080}, want: "localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Address())
		})
	}
}

func TestValidQuality(t *testing.T) {
	assert.True(t, ValidQuality("mp3", "320"))
	assert.True(t, ValidQuality("mp4", "1080"))
	assert.False(t, ValidQuality("mp3", "1080"))
	assert.False(t, ValidQuality("mp4", "128"))
	assert.False(t, ValidQuality("wav", "192"))
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RESIDENTIAL_PROXY_USER", "user1")
	t.Setenv("RESIDENTIAL_PROXY_PASS", "secret")
	t.Setenv("RESIDENTIAL_PROXY_ENDPOINT", "149.88.96.10:10001,gate.decodo.com:10002")
	t.Setenv("STEALTH_HOSTS", "youtube.com,vimeo.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "user1", cfg.Proxy.DecodoUser)
	assert.Equal(t, []string{"149.88.96.10:10001", "gate.decodo.com:10002"}, cfg.Proxy.DecodoEndpoints)
	assert.Equal(t, []string{"youtube.com", "vimeo.com"}, cfg.Proxy.StealthHosts)
	assert.True(t, cfg.Proxy.AllowDirect)
	assert.Equal(t, 5*time.Minute, cfg.Conflict.RefreshInterval)
	assert.Equal(t, 45*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Transcode.Timeout)
	assert.Equal(t, 5, cfg.Extract.MaxAttempts)
	assert.Equal(t, 3, cfg.Transcode.MaxAttempts)
	assert.Empty(t, cfg.Extract.YouTubeAPIKey)
	assert.Equal(t, "https://www.googleapis.com/youtube/v3", cfg.Extract.YouTubeAPIURL)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
proxy:
  brightdata_user: "yaml-user"
  brightdata_pass: "yaml-pass"
  datacenter_url: "http://dc.example.com:3128"
conflict:
  dns_server: "1.1.1.1:53"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "yaml-user", cfg.Proxy.BrightDataUser)
	assert.Equal(t, "http://dc.example.com:3128", cfg.Proxy.DatacenterURL)
	assert.Equal(t, "1.1.1.1:53", cfg.Conflict.DNSServer)
	assert.Equal(t, "residential", cfg.Proxy.BrightDataZone)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  write_timeout: 1h
proxy:
  allow_direct: false
  stealth_hosts: ["vimeo.com"]
  family_priority: ["oxylabs"]
conflict:
  enabled: false
extract:
  timeout: 5s
  max_attempts: 2
transcode:
  timeout: 4m
  max_attempts: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.False(t, cfg.Proxy.AllowDirect)
	assert.Equal(t, []string{"vimeo.com"}, cfg.Proxy.StealthHosts)
	assert.Equal(t, []string{"oxylabs"}, cfg.Proxy.FamilyPriority)
	assert.False(t, cfg.Conflict.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, 2, cfg.Extract.MaxAttempts)
	assert.Equal(t, 4*time.Minute, cfg.Transcode.Timeout)
	assert.Equal(t, 7, cfg.Transcode.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Server.WriteTimeout)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Transcode.Concurrency)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
proxy:
  oxylabs_user: "yaml-user"
usage:
  db_path: "/yaml/usage.db"
extract:
  max_attempts: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("OXYLABS_USER", "env-user")
	t.Setenv("USAGE_DB_PATH", "/env/usage.db")
	t.Setenv("EXTRACT_MAX_ATTEMPTS", "4")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Proxy.OxylabsUser)
	assert.Equal(t, "/env/usage.db", cfg.Usage.DBPath)
	assert.Equal(t, 4, cfg.Extract.MaxAttempts)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("proxy: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("DISABLE_PROXY", "true")
	t.Setenv("DIRECT_CONNECTION_DISABLED", "true")

	_, err := Load("")
	assert.Error(t, err)
}
