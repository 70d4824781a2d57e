package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	TrustMode      string `yaml:"trustMode"`
	ConverterURL   string `yaml:"converterUrl"`
	ConverterDPI   int    `yaml:"converterDpi"`
	OutputFormat   string `yaml:"outputFormat"`
	MaxPages       int    `yaml:"maxPages"`
	MaxDocumentMB  int    `yaml:"maxDocumentMb"`
	WorkDir        string `yaml:"workDir"`
	LedgerTTLHours int    `yaml:"ledgerTtlHours"`

	SecretProvider          string `yaml:"secretProvider"`
	AuthSecretName          string `yaml:"authSecretName"`
	AWSRegion               string `yaml:"awsRegion"`
	TokenIssuer             string `yaml:"tokenIssuer"`
	AllowedClockSkewSeconds int    `yaml:"allowedClockSkewSeconds"`

	MaxAttempts           int `yaml:"maxAttempts"`
	BackoffBaseMillis     int `yaml:"backoffBaseMillis"`
	UploadConcurrency     int `yaml:"uploadConcurrency"`
	WebhookTimeoutSeconds int `yaml:"webhookTimeoutSeconds"`

	TracingEnabled  bool   `yaml:"tracingEnabled"`
	TracingEndpoint string `yaml:"tracingEndpoint"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	Submit RateLimitBucketConfig `yaml:"submit"`
}

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

// LoadConfigOptional behaves like LoadConfig but tolerates a missing or
// empty path, falling back to env overrides and defaults alone.
func LoadConfigOptional(filePath string) (*Config, error) {
	p := strings.TrimSpace(filePath)
	if p == "" {
		return finish(&Config{})
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(&Config{})
		}
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c)
}

func finish(c *Config) (*Config, error) {
	applyEnv(c)
	applyDefaults(c)
	log.Printf("Renderq Config: {Port:%d Redis:%s Converter:%s Trust:%s Attempts:%d Concurrency:%d}\n",
		c.Port, c.RedisAddr, c.ConverterURL, c.TrustMode, c.MaxAttempts, c.UploadConcurrency)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("TRUST_MODE"); v != "" {
		c.TrustMode = v
	}
	if v := os.Getenv("CONVERTER_URL"); v != "" {
		c.ConverterURL = v
	}
	if v := os.Getenv("CONVERTER_DPI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ConverterDPI = n
		}
	}
	if v := os.Getenv("OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = v
	}
	if v := os.Getenv("MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPages = n
		}
	}
	if v := os.Getenv("MAX_DOCUMENT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDocumentMB = n
		}
	}
	if v := os.Getenv("WORK_DIR"); v != "" {
		c.WorkDir = v
	}
	if v := os.Getenv("LEDGER_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LedgerTTLHours = n
		}
	}
	if v := os.Getenv("SECRET_PROVIDER"); v != "" {
		c.SecretProvider = v
	}
	if v := os.Getenv("AUTH_SECRET_NAME"); v != "" {
		c.AuthSecretName = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWSRegion = v
	}
	if v := os.Getenv("TOKEN_ISSUER"); v != "" {
		c.TokenIssuer = v
	}
	if v := os.Getenv("ALLOWED_CLOCK_SKEW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AllowedClockSkewSeconds = n
		}
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv("BACKOFF_BASE_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackoffBaseMillis = n
		}
	}
	if v := os.Getenv("UPLOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.UploadConcurrency = n
		}
	}
	if v := os.Getenv("WEBHOOK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WebhookTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_ENDPOINT"); v != "" {
		c.TracingEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.TrustMode == "" {
		c.TrustMode = "strict"
	}
	if c.ConverterDPI <= 0 {
		c.ConverterDPI = 150
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "png"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	if c.MaxDocumentMB <= 0 {
		c.MaxDocumentMB = 100
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.LedgerTTLHours <= 0 {
		c.LedgerTTLHours = 24
	}
	if c.SecretProvider == "" {
		c.SecretProvider = "env"
	}
	if c.AuthSecretName == "" {
		c.AuthSecretName = "RENDERQ_AUTH_SECRET"
	}
	if c.AWSRegion == "" {
		c.AWSRegion = "us-east-1"
	}
	if c.AllowedClockSkewSeconds <= 0 {
		c.AllowedClockSkewSeconds = 60
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBaseMillis <= 0 {
		c.BackoffBaseMillis = 500
	}
	if c.UploadConcurrency <= 0 {
		c.UploadConcurrency = 5
	}
	if c.WebhookTimeoutSeconds <= 0 {
		c.WebhookTimeoutSeconds = 10
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.ConverterURL == "" {
		errs = append(errs, "converterUrl is required")
	} else {
		u, err := url.Parse(c.ConverterURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "converterUrl must be a valid http(s) URL")
		}
	}
	switch c.TrustMode {
	case "strict", "permissive":
	default:
		errs = append(errs, "trustMode must be strict or permissive")
	}
	switch c.SecretProvider {
	case "env", "awsSecretsManager":
	default:
		errs = append(errs, "secretProvider must be env or awsSecretsManager")
	}
	if c.TokenIssuer == "" && !dev {
		errs = append(errs, "tokenIssuer is required in non-dev")
	}
	if c.TrustMode == "permissive" && !dev {
		errs = append(errs, "permissive trust mode is only allowed in dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
