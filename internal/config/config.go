package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Conflict  ConflictConfig  `yaml:"conflict"`
	Extract   ExtractConfig   `yaml:"extract"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Usage     UsageConfig     `yaml:"usage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host          string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port          int           `yaml:"port" envconfig:"PORT" default:"8000"`
	APIKey        string        `yaml:"api_key" envconfig:"API_KEY"`
	PublicBaseURL string        `yaml:"public_base_url" envconfig:"PUBLIC_BASE_URL"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"35m"`
}

// StorageConfig holds filesystem locations for converted output.
type StorageConfig struct {
	OutputPath      string        `yaml:"output_path" envconfig:"STORAGE_OUTPUT_PATH" default:"/data/output"`
	TempPath        string        `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/data/temp"`
	Retention       time.Duration `yaml:"retention" envconfig:"STORAGE_RETENTION" default:"1h"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" envconfig:"STORAGE_CLEANUP_INTERVAL" default:"10m"`
}

// ProxyConfig holds outbound proxy provider credentials and selection knobs.
// Missing or placeholder credentials silently disable a provider.
type ProxyConfig struct {
	Disabled       bool     `yaml:"disabled" envconfig:"DISABLE_PROXY"`
	DirectDisabled bool     `yaml:"direct_disabled" envconfig:"DIRECT_CONNECTION_DISABLED"`
	AllowDirect    bool     `yaml:"allow_direct" envconfig:"ALLOW_DIRECT" default:"true"`
	StealthHosts   []string `yaml:"stealth_hosts" envconfig:"STEALTH_HOSTS" default:"youtube.com,youtu.be,googlevideo.com"`
	FamilyPriority []string `yaml:"family_priority" envconfig:"PROXY_FAMILY_PRIORITY" default:"decodo-ip,brightdata,oxylabs,smartproxy,decodo"`
	Country        string   `yaml:"country" envconfig:"PROXY_COUNTRY"`

	// BestMinAttempts is the sample size an endpoint needs before it can be promoted.
	BestMinAttempts int `yaml:"best_min_attempts" envconfig:"PROXY_BEST_MIN_ATTEMPTS" default:"3"`
	BestPromote     int `yaml:"best_promote" envconfig:"PROXY_BEST_PROMOTE" default:"2"`

	// Decodo residential.
	DecodoUser      string   `yaml:"decodo_user" envconfig:"RESIDENTIAL_PROXY_USER"`
	DecodoPass      string   `yaml:"decodo_pass" envconfig:"RESIDENTIAL_PROXY_PASS"`
	DecodoEndpoints []string `yaml:"decodo_endpoints" envconfig:"RESIDENTIAL_PROXY_ENDPOINT"`

	SmartproxyUser      string   `yaml:"smartproxy_user" envconfig:"SMARTPROXY_USER"`
	SmartproxyPass      string   `yaml:"smartproxy_pass" envconfig:"SMARTPROXY_PASS"`
	SmartproxyEndpoints []string `yaml:"smartproxy_endpoints" envconfig:"SMARTPROXY_ENDPOINTS" default:"gate.smartproxy.com:10000,gate.smartproxy.com:10001,gate.smartproxy.com:10002"`

	BrightDataUser     string `yaml:"brightdata_user" envconfig:"BRIGHTDATA_USER"`
	BrightDataPass     string `yaml:"brightdata_pass" envconfig:"BRIGHTDATA_PASS"`
	BrightDataZone     string `yaml:"brightdata_zone" envconfig:"BRIGHTDATA_ZONE" default:"residential"`
	BrightDataEndpoint string `yaml:"brightdata_endpoint" envconfig:"BRIGHTDATA_ENDPOINT" default:"zproxy.lum-superproxy.io:22225"`

	OxylabsUser     string `yaml:"oxylabs_user" envconfig:"OXYLABS_USER"`
	OxylabsPass     string `yaml:"oxylabs_pass" envconfig:"OXYLABS_PASS"`
	OxylabsEndpoint string `yaml:"oxylabs_endpoint" envconfig:"OXYLABS_ENDPOINT" default:"pr.oxylabs.io:7777"`

	DatacenterURL string   `yaml:"datacenter_url" envconfig:"DATACENTER_PROXY_URL"`
	FreeURLs      []string `yaml:"free_urls" envconfig:"FREE_PROXY_URLS"`
}

// ConflictConfig controls VPN/path-interference detection.
type ConflictConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"CONFLICT_DETECTION_ENABLED" default:"true"`
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"CONFLICT_REFRESH_INTERVAL" default:"5m"`
	ProbeURL        string        `yaml:"probe_url" envconfig:"CONFLICT_PROBE_URL" default:"https://httpbin.org/ip"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" envconfig:"CONFLICT_PROBE_TIMEOUT" default:"10s"`
	DNSServer       string        `yaml:"dns_server" envconfig:"CONFLICT_DNS_SERVER"`
	DNSTimeout      time.Duration `yaml:"dns_timeout" envconfig:"CONFLICT_DNS_TIMEOUT" default:"5s"`
	Confirmations   int           `yaml:"confirmations" envconfig:"CONFLICT_CONFIRMATIONS" default:"1"`
}

// ExtractConfig holds metadata extraction settings.
type ExtractConfig struct {
	YtDlpPath   string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"EXTRACT_TIMEOUT" default:"45s"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"EXTRACT_MAX_ATTEMPTS" default:"5"`
	CacheTTL    time.Duration `yaml:"cache_ttl" envconfig:"METADATA_CACHE_TTL" default:"10m"`
	CacheSize   int           `yaml:"cache_size" envconfig:"METADATA_CACHE_SIZE" default:"256"`

	// YouTube Data API fallback, used only when a key is set.
	YouTubeAPIKey     string        `yaml:"youtube_api_key" envconfig:"YOUTUBE_API_KEY"`
	YouTubeAPIURL     string        `yaml:"youtube_api_url" envconfig:"YOUTUBE_API_URL" default:"https://www.googleapis.com/youtube/v3"`
	YouTubeAPITimeout time.Duration `yaml:"youtube_api_timeout" envconfig:"YOUTUBE_API_TIMEOUT" default:"10s"`
}

// TranscodeConfig holds download+transcode settings.
type TranscodeConfig struct {
	FFmpegPath  string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string        `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH" default:"ffprobe"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TRANSCODE_TIMEOUT" default:"10m"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"TRANSCODE_MAX_ATTEMPTS" default:"3"`
	Concurrency int           `yaml:"concurrency" envconfig:"TRANSCODE_CONCURRENCY" default:"2"`
	DefaultMP3  string        `yaml:"default_mp3_quality" envconfig:"TRANSCODE_DEFAULT_MP3_QUALITY" default:"192"`
	DefaultMP4  string        `yaml:"default_mp4_quality" envconfig:"TRANSCODE_DEFAULT_MP4_QUALITY" default:"720"`
	StopTimeout time.Duration `yaml:"stop_timeout" envconfig:"TRANSCODE_STOP_TIMEOUT" default:"25s"`
}

// UsageConfig controls the optional proxy usage log used for cost reports.
type UsageConfig struct {
	DBPath       string  `yaml:"db_path" envconfig:"USAGE_DB_PATH"`
	PlanPriceUSD float64 `yaml:"plan_price_usd" envconfig:"USAGE_PLAN_PRICE_USD" default:"22"`
	PlanGB       float64 `yaml:"plan_gb" envconfig:"USAGE_PLAN_GB" default:"8"`
	PerGBUSD     float64 `yaml:"per_gb_usd" envconfig:"USAGE_PAYG_PER_GB_USD" default:"3.5"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"`
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS" default:"3"`
}

var mp3Qualities = map[string]bool{"64": true, "128": true, "192": true, "256": true, "320": true}
var mp4Qualities = map[string]bool{"360": true, "480": true, "720": true, "1080": true}

// Load reads configuration from file and environment variables.
// Precedence is struct defaults, then the file, then variables that are set
// in the environment.
func Load(configPath string) (*Config, error) {
	// Defaults plus environment.
	fromEnv := &Config{}
	if err := envconfig.Process("", fromEnv); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg := fromEnv
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		merged := *fromEnv
		if err := yaml.Unmarshal(data, &merged); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applySetEnv(reflect.ValueOf(&merged).Elem(), reflect.ValueOf(fromEnv).Elem(), "")
		cfg = &merged
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applySetEnv copies from src into dst every field whose variable is present
// in the environment. Keys are looked up the way envconfig does: the
// section-prefixed name first, then the bare tag.
func applySetEnv(dst, src reflect.Value, prefix string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.ToUpper(f.Tag.Get("envconfig"))
		if f.Type.Kind() == reflect.Struct && tag == "" {
			applySetEnv(dst.Field(i), src.Field(i), strings.ToUpper(f.Name))
			continue
		}
		if tag == "" {
			continue
		}
		if envSet(prefix+"_"+tag) || envSet(tag) {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.Storage.OutputPath == "" {
		return fmt.Errorf("STORAGE_OUTPUT_PATH is required")
	}
	if c.Proxy.Disabled && c.Proxy.DirectDisabled {
		return fmt.Errorf("DISABLE_PROXY and DIRECT_CONNECTION_DISABLED leave no network path")
	}
	if c.Proxy.BestMinAttempts < 1 {
		return fmt.Errorf("PROXY_BEST_MIN_ATTEMPTS must be at least 1")
	}
	if c.Proxy.BestPromote < 0 {
		return fmt.Errorf("PROXY_BEST_PROMOTE must not be negative")
	}
	if c.Conflict.Enabled {
		if c.Conflict.RefreshInterval <= 0 {
			return fmt.Errorf("CONFLICT_REFRESH_INTERVAL must be positive")
		}
		if c.Conflict.Confirmations < 1 {
			return fmt.Errorf("CONFLICT_CONFIRMATIONS must be at least 1")
		}
		if !strings.HasPrefix(c.Conflict.ProbeURL, "http://") && !strings.HasPrefix(c.Conflict.ProbeURL, "https://") {
			return fmt.Errorf("CONFLICT_PROBE_URL must be an http(s) URL")
		}
	}
	if c.Extract.MaxAttempts < 1 {
		return fmt.Errorf("EXTRACT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Transcode.MaxAttempts < 1 {
		return fmt.Errorf("TRANSCODE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Transcode.Concurrency < 1 {
		return fmt.Errorf("TRANSCODE_CONCURRENCY must be at least 1")
	}
	if c.Server.WriteTimeout > 0 {
		if budget := c.ConvertBudget(); c.Server.WriteTimeout < budget {
			return fmt.Errorf("SERVER_WRITE_TIMEOUT %s is shorter than the convert budget %s (TRANSCODE_TIMEOUT x TRANSCODE_MAX_ATTEMPTS plus conflict probe)",
				c.Server.WriteTimeout, budget)
		}
		if budget := c.ValidateBudget(); c.Server.WriteTimeout < budget {
			return fmt.Errorf("SERVER_WRITE_TIMEOUT %s is shorter than the validate budget %s (EXTRACT_TIMEOUT x EXTRACT_MAX_ATTEMPTS plus conflict probe)",
				c.Server.WriteTimeout, budget)
		}
	}
	if !mp3Qualities[c.Transcode.DefaultMP3] {
		return fmt.Errorf("invalid TRANSCODE_DEFAULT_MP3_QUALITY %q", c.Transcode.DefaultMP3)
	}
	if !mp4Qualities[c.Transcode.DefaultMP4] {
		return fmt.Errorf("invalid TRANSCODE_DEFAULT_MP4_QUALITY %q", c.Transcode.DefaultMP4)
	}
	return nil
}

// ConvertBudget is the longest a convert request can run when every
// candidate path uses its full timeout.
func (c *Config) ConvertBudget() time.Duration {
	return c.Transcode.Timeout*time.Duration(c.Transcode.MaxAttempts) + c.probeBudget()
}

// ValidateBudget is ConvertBudget for metadata lookups, including the Data
// API fallback when it is configured.
func (c *Config) ValidateBudget() time.Duration {
	b := c.Extract.Timeout*time.Duration(c.Extract.MaxAttempts) + c.probeBudget()
	if c.Extract.YouTubeAPIKey != "" {
		b += c.Extract.YouTubeAPITimeout
	}
	return b
}

func (c *Config) probeBudget() time.Duration {
	if !c.Conflict.Enabled {
		return 0
	}
	return c.Conflict.ProbeTimeout + c.Conflict.DNSTimeout
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ValidQuality reports whether token is an accepted quality for the format.
func ValidQuality(format, token string) bool {
	switch format {
	case "mp3":
		return mp3Qualities[token]
	case "mp4":
		return mp4Qualities[token]
	}
	return false
}
