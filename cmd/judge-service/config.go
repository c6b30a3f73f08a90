package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"nitz/internal/common/cache"
	"nitz/internal/common/db"
	commonmw "nitz/internal/common/http/middleware"
	"nitz/internal/common/mq"
	"nitz/internal/common/storage"
	"nitz/internal/judge/limiter"
	"nitz/internal/judge/middleware"
	"nitz/internal/judge/sandbox"
	"nitz/internal/judge/sandbox/engine"
	"nitz/internal/judge/sandbox/profile"
	"nitz/pkg/utils/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr         = "0.0.0.0:8085"
	defaultReadTimeout      = 5 * time.Second
	defaultWriteTimeout     = 60 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxBodyBytes     = 256 << 10
	defaultWorkerTimeout    = 30 * time.Second
	defaultProblemTimeout   = 3 * time.Second
	defaultStatusTimeout    = 2 * time.Second
	defaultPersistTimeout   = 5 * time.Second
	defaultProblemCacheTTL  = 5 * time.Minute
	defaultEmptyCacheTTL    = 30 * time.Second
	defaultStarterCacheTTL  = 10 * time.Minute
	defaultStatusTTL        = 30 * time.Minute
	defaultAdmissionTimeout = 10 * time.Second
	defaultOutcomeTopic     = "judge.outcome"
	defaultWorkRoot         = "/var/lib/nitz/work"
	defaultHelperPath       = "/usr/local/bin/nitz-sandbox-init"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"JUDGE_HTTP_ADDR"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	// TrustUserIDHeader lets X-User-Id populate the request context.
	TrustUserIDHeader bool `yaml:"trustUserIdHeader"`
}

// KafkaConfig holds Kafka settings. No brokers disables outcome events.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	ClientID     string        `yaml:"clientID"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
	OutcomeTopic string        `yaml:"outcomeTopic"`
}

// CacheTTLConfig holds cache-aside lifetimes.
type CacheTTLConfig struct {
	Problem     time.Duration `yaml:"problem"`
	Empty       time.Duration `yaml:"empty"`
	StarterCode time.Duration `yaml:"starterCode"`
	Status      time.Duration `yaml:"status"`
}

// JudgeConfig holds coordinator timeouts and limits.
type JudgeConfig struct {
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	WorkerTimeout  time.Duration `yaml:"workerTimeout"`
	ProblemTimeout time.Duration `yaml:"problemTimeout"`
	StatusTimeout  time.Duration `yaml:"statusTimeout"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
	SourceBucket   string        `yaml:"sourceBucket"`
}

// WorkerConfig holds test case execution settings.
type WorkerConfig struct {
	WorkRoot         string        `yaml:"workRoot" env:"JUDGE_WORK_ROOT"`
	CaseParallelism  int           `yaml:"caseParallelism"`
	SubmissionBudget time.Duration `yaml:"submissionBudget"`
	Policy           string        `yaml:"policy" env:"JUDGE_POLICY"`
}

// SandboxConfig holds sandbox engine settings.
type SandboxConfig struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath" env:"SANDBOX_HELPER_PATH"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig               `yaml:"server"`
	Logger    logger.Config              `yaml:"logger"`
	Database  db.Config                  `yaml:"database"`
	Redis     cache.RedisConfig          `yaml:"redis"`
	MinIO     storage.MinIOConfig        `yaml:"minio"`
	Kafka     KafkaConfig                `yaml:"kafka"`
	CacheTTL  CacheTTLConfig             `yaml:"cacheTTL"`
	Judge     JudgeConfig                `yaml:"judge"`
	Limiter   limiter.Config             `yaml:"limiter"`
	Worker    WorkerConfig               `yaml:"worker"`
	Sandbox   SandboxConfig              `yaml:"sandbox"`
	Auth      middleware.AuthConfig      `yaml:"auth"`
	RateLimit middleware.RateLimitConfig `yaml:"rateLimit"`
	CORS      commonmw.CORSConfig        `yaml:"cors"`
	Languages []profile.LanguageSpec     `yaml:"languages"`
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the YAML file, then envFile if present, then process env overrides.
func loadAppConfig(path, envFile string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file failed: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env overrides failed: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if _, ok := sandbox.ParsePolicy(cfg.Worker.Policy); !ok {
		return nil, fmt.Errorf("unknown worker policy %q", cfg.Worker.Policy)
	}
	cfg.Redis.ApplyDefaults()
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Kafka.OutcomeTopic == "" {
		cfg.Kafka.OutcomeTopic = defaultOutcomeTopic
	}
	if cfg.CacheTTL.Problem == 0 {
		cfg.CacheTTL.Problem = defaultProblemCacheTTL
	}
	if cfg.CacheTTL.Empty == 0 {
		cfg.CacheTTL.Empty = defaultEmptyCacheTTL
	}
	if cfg.CacheTTL.StarterCode == 0 {
		cfg.CacheTTL.StarterCode = defaultStarterCacheTTL
	}
	if cfg.CacheTTL.Status == 0 {
		cfg.CacheTTL.Status = defaultStatusTTL
	}
	if cfg.Judge.WorkerTimeout == 0 {
		cfg.Judge.WorkerTimeout = defaultWorkerTimeout
	}
	if cfg.Judge.ProblemTimeout == 0 {
		cfg.Judge.ProblemTimeout = defaultProblemTimeout
	}
	if cfg.Judge.StatusTimeout == 0 {
		cfg.Judge.StatusTimeout = defaultStatusTimeout
	}
	if cfg.Judge.PersistTimeout == 0 {
		cfg.Judge.PersistTimeout = defaultPersistTimeout
	}
	if cfg.Judge.SourceBucket == "" {
		cfg.Judge.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Limiter.Slots <= 0 {
		cfg.Limiter.Slots = 1
	}
	if cfg.Limiter.AdmissionTimeout == 0 {
		cfg.Limiter.AdmissionTimeout = defaultAdmissionTimeout
	}
	if cfg.Worker.WorkRoot == "" {
		cfg.Worker.WorkRoot = defaultWorkRoot
	}
	if cfg.Worker.CaseParallelism <= 0 {
		cfg.Worker.CaseParallelism = 1
	}
	if cfg.Sandbox.HelperPath == "" {
		cfg.Sandbox.HelperPath = defaultHelperPath
	}
	if cfg.CORS.Enabled() {
		if len(cfg.CORS.AllowedMethods) == 0 {
			cfg.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE"}
		}
		if len(cfg.CORS.AllowedHeaders) == 0 {
			cfg.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Trace-Id", "X-User-Id"}
		}
		if len(cfg.CORS.ExposedHeaders) == 0 {
			cfg.CORS.ExposedHeaders = []string{"X-Trace-Id", "Retry-After"}
		}
	}
}

func (k KafkaConfig) enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		CgroupRoot:           s.CgroupRoot,
		SeccompDir:           s.SeccompDir,
		HelperPath:           s.HelperPath,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		EnableSeccomp:        s.EnableSeccomp,
		EnableCgroup:         s.EnableCgroup,
		EnableNamespaces:     s.EnableNamespaces,
	}
}

func (w WorkerConfig) toSandboxConfig(policy sandbox.Policy) sandbox.WorkerConfig {
	return sandbox.WorkerConfig{
		CaseParallelism:  w.CaseParallelism,
		SubmissionBudget: w.SubmissionBudget,
		Policy:           policy,
	}
}
