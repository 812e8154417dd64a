package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PodConfig binds a pod id to the KV store instance that owns the pod's
// state.
type PodConfig struct {
	PodID int    `yaml:"pod_id"`
	KVURL string `yaml:"kv_url"`
}

type Config struct {
	//===============
	// Topology
	//===============
	// Number of pods; domains are sharded across pods by hash(domain) mod podCount.
	podCount int
	// Fetcher processes per pod. The orchestrator counts as fetcher 0 of pod 0.
	fetchersPerPod int
	// Parser processes per pod.
	parsersPerPod int
	// Fetch worker goroutines inside each fetcher process.
	fetcherWorkers int
	// Parse worker goroutines inside each parser process.
	parserWorkers int
	// One KV endpoint per pod.
	podConfigs []PodConfig
	// Pin each process to a dedicated core.
	enableCPUAffinity bool

	//===============
	// Limits
	//===============
	maxPages    int
	maxDuration time.Duration
	maxDepth    int

	//===============
	// Politeness
	//===============
	politenessDelay   time.Duration
	robotsCacheTTL    time.Duration
	userAgentTemplate string
	// Contact email substituted into the user-agent template.
	email string
	// File of domains that are never fetched; one domain per line.
	excludeFile string

	//===============
	// Frontier
	//===============
	seedFile       string
	bloomCapacity  int64
	bloomErrorRate float64
	resume         bool

	//===============
	// Queues
	//===============
	parseQueueSoftLimit int64
	parseQueueHardLimit int64

	//===============
	// Output
	//===============
	dataDirs       []string
	logDir         string
	prometheusPort int
}

type configDTO struct {
	PodCount            int         `yaml:"pod_count"`
	FetchersPerPod      int         `yaml:"fetchers_per_pod"`
	ParsersPerPod       int         `yaml:"parsers_per_pod"`
	FetcherWorkers      int         `yaml:"fetcher_workers"`
	ParserWorkers       int         `yaml:"parser_workers"`
	PodConfigs          []PodConfig `yaml:"pod_configs"`
	EnableCPUAffinity   bool        `yaml:"enable_cpu_affinity"`
	MaxPages            int         `yaml:"max_pages"`
	MaxDurationSeconds  int         `yaml:"max_duration_seconds"`
	MaxDepth            int         `yaml:"max_depth"`
	PolitenessDelaySecs float64     `yaml:"politeness_delay_seconds"`
	RobotsCacheTTLSecs  int         `yaml:"robots_cache_ttl_seconds"`
	UserAgentTemplate   string      `yaml:"user_agent_template"`
	Email               string      `yaml:"email"`
	ExcludeFile         string      `yaml:"exclude_file"`
	SeedFile            string      `yaml:"seed_file"`
	BloomCapacity       int64       `yaml:"bloom_capacity"`
	BloomErrorRate      float64     `yaml:"bloom_error_rate"`
	Resume              bool        `yaml:"resume"`
	ParseQueueSoftLimit int64       `yaml:"parse_queue_soft_limit"`
	ParseQueueHardLimit int64       `yaml:"parse_queue_hard_limit"`
	DataDirs            []string    `yaml:"data_dirs"`
	LogDir              string      `yaml:"log_dir"`
	PrometheusPort      int         `yaml:"prometheus_port"`
}

// WithConfigFile loads a YAML config file, applying defaults for any field
// the file leaves unset.
func WithConfigFile(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	dto := configDTO{}
	if err := yaml.Unmarshal(content, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	return newConfigFromDTO(dto)
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	builder := WithDefault()

	if dto.PodCount != 0 {
		builder.podCount = dto.PodCount
	}
	if dto.FetchersPerPod != 0 {
		builder.fetchersPerPod = dto.FetchersPerPod
	}
	if dto.ParsersPerPod != 0 {
		builder.parsersPerPod = dto.ParsersPerPod
	}
	if dto.FetcherWorkers != 0 {
		builder.fetcherWorkers = dto.FetcherWorkers
	}
	if dto.ParserWorkers != 0 {
		builder.parserWorkers = dto.ParserWorkers
	}
	if len(dto.PodConfigs) > 0 {
		builder.podConfigs = dto.PodConfigs
	}
	builder.enableCPUAffinity = dto.EnableCPUAffinity
	if dto.MaxPages != 0 {
		builder.maxPages = dto.MaxPages
	}
	if dto.MaxDurationSeconds != 0 {
		builder.maxDuration = time.Duration(dto.MaxDurationSeconds) * time.Second
	}
	if dto.MaxDepth != 0 {
		builder.maxDepth = dto.MaxDepth
	}
	if dto.PolitenessDelaySecs != 0 {
		builder.politenessDelay = time.Duration(dto.PolitenessDelaySecs * float64(time.Second))
	}
	if dto.RobotsCacheTTLSecs != 0 {
		builder.robotsCacheTTL = time.Duration(dto.RobotsCacheTTLSecs) * time.Second
	}
	if dto.UserAgentTemplate != "" {
		builder.userAgentTemplate = dto.UserAgentTemplate
	}
	if dto.Email != "" {
		builder.email = dto.Email
	}
	builder.excludeFile = dto.ExcludeFile
	if dto.SeedFile != "" {
		builder.seedFile = dto.SeedFile
	}
	if dto.BloomCapacity != 0 {
		builder.bloomCapacity = dto.BloomCapacity
	}
	if dto.BloomErrorRate != 0 {
		builder.bloomErrorRate = dto.BloomErrorRate
	}
	builder.resume = dto.Resume
	if dto.ParseQueueSoftLimit != 0 {
		builder.parseQueueSoftLimit = dto.ParseQueueSoftLimit
	}
	if dto.ParseQueueHardLimit != 0 {
		builder.parseQueueHardLimit = dto.ParseQueueHardLimit
	}
	if len(dto.DataDirs) > 0 {
		builder.dataDirs = dto.DataDirs
	}
	if dto.LogDir != "" {
		builder.logDir = dto.LogDir
	}
	if dto.PrometheusPort != 0 {
		builder.prometheusPort = dto.PrometheusPort
	}

	return builder.Build()
}

// WithDefault creates a Config builder with defaults suitable for a
// single-pod local run. Production deployments override topology, data_dirs
// and pod_configs.
func WithDefault() *Config {
	return &Config{
		podCount:            1,
		fetchersPerPod:      1,
		parsersPerPod:       1,
		fetcherWorkers:      64,
		parserWorkers:       16,
		podConfigs:          []PodConfig{{PodID: 0, KVURL: "redis://localhost:6379/0"}},
		enableCPUAffinity:   false,
		maxPages:            0,
		maxDuration:         0,
		maxDepth:            10,
		politenessDelay:     70 * time.Second,
		robotsCacheTTL:      24 * time.Hour,
		userAgentTemplate:   "pod-crawler/1.0 (+{email})",
		email:               "",
		seedFile:            "",
		bloomCapacity:       100_000_000,
		bloomErrorRate:      0.001,
		parseQueueSoftLimit: 2_000,
		parseQueueHardLimit: 10_000,
		dataDirs:            []string{"data"},
		logDir:              "logs",
		prometheusPort:      9091,
	}
}

func (c *Config) WithPodCount(n int) *Config {
	c.podCount = n
	return c
}

func (c *Config) WithProcessCounts(fetchers, parsers int) *Config {
	c.fetchersPerPod = fetchers
	c.parsersPerPod = parsers
	return c
}

func (c *Config) WithWorkerCounts(fetcherWorkers, parserWorkers int) *Config {
	c.fetcherWorkers = fetcherWorkers
	c.parserWorkers = parserWorkers
	return c
}

func (c *Config) WithPodConfigs(pods []PodConfig) *Config {
	c.podConfigs = pods
	return c
}

func (c *Config) WithSeedFile(path string) *Config {
	c.seedFile = path
	return c
}

func (c *Config) WithExcludeFile(path string) *Config {
	c.excludeFile = path
	return c
}

func (c *Config) WithDataDirs(dirs []string) *Config {
	c.dataDirs = dirs
	return c
}

func (c *Config) WithLogDir(dir string) *Config {
	c.logDir = dir
	return c
}

func (c *Config) WithLimits(maxPages int, maxDuration time.Duration, maxDepth int) *Config {
	c.maxPages = maxPages
	c.maxDuration = maxDuration
	c.maxDepth = maxDepth
	return c
}

func (c *Config) WithPolitenessDelay(d time.Duration) *Config {
	c.politenessDelay = d
	return c
}

func (c *Config) WithRobotsCacheTTL(d time.Duration) *Config {
	c.robotsCacheTTL = d
	return c
}

func (c *Config) WithBloom(capacity int64, errorRate float64) *Config {
	c.bloomCapacity = capacity
	c.bloomErrorRate = errorRate
	return c
}

func (c *Config) WithParseQueueLimits(soft, hard int64) *Config {
	c.parseQueueSoftLimit = soft
	c.parseQueueHardLimit = hard
	return c
}

func (c *Config) WithResume(resume bool) *Config {
	c.resume = resume
	return c
}

func (c *Config) WithEmail(email string) *Config {
	c.email = email
	return c
}

func (c *Config) WithCPUAffinity(enabled bool) *Config {
	c.enableCPUAffinity = enabled
	return c
}

func (c *Config) Build() (Config, error) {
	if c.podCount < 1 {
		return Config{}, fmt.Errorf("%w: pod_count must be >= 1", ErrInvalidConfig)
	}
	if c.fetchersPerPod < 1 || c.parsersPerPod < 1 {
		return Config{}, fmt.Errorf("%w: fetchers_per_pod and parsers_per_pod must be >= 1", ErrInvalidConfig)
	}
	if len(c.podConfigs) != c.podCount {
		return Config{}, fmt.Errorf("%w: pod_configs must list exactly pod_count entries, got %d for %d pods",
			ErrInvalidConfig, len(c.podConfigs), c.podCount)
	}
	seen := make(map[int]struct{}, len(c.podConfigs))
	for _, pod := range c.podConfigs {
		if pod.PodID < 0 || pod.PodID >= c.podCount {
			return Config{}, fmt.Errorf("%w: pod_id %d out of range", ErrInvalidConfig, pod.PodID)
		}
		if _, dup := seen[pod.PodID]; dup {
			return Config{}, fmt.Errorf("%w: duplicate pod_id %d", ErrInvalidConfig, pod.PodID)
		}
		if pod.KVURL == "" {
			return Config{}, fmt.Errorf("%w: pod %d has no kv_url", ErrInvalidConfig, pod.PodID)
		}
		seen[pod.PodID] = struct{}{}
	}
	if len(c.dataDirs) == 0 {
		return Config{}, fmt.Errorf("%w: data_dirs cannot be empty", ErrInvalidConfig)
	}
	if c.parseQueueHardLimit < c.parseQueueSoftLimit {
		return Config{}, fmt.Errorf("%w: parse_queue_hard_limit below soft limit", ErrInvalidConfig)
	}
	if c.bloomErrorRate <= 0 || c.bloomErrorRate >= 1 {
		return Config{}, fmt.Errorf("%w: bloom_error_rate must be in (0, 1)", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) PodCount() int {
	return c.podCount
}

func (c Config) FetchersPerPod() int {
	return c.fetchersPerPod
}

func (c Config) ParsersPerPod() int {
	return c.parsersPerPod
}

// CoresPerPod is the number of pinned cores a pod occupies: one per process.
func (c Config) CoresPerPod() int {
	return c.fetchersPerPod + c.parsersPerPod
}

func (c Config) FetcherWorkers() int {
	return c.fetcherWorkers
}

func (c Config) ParserWorkers() int {
	return c.parserWorkers
}

func (c Config) PodConfigs() []PodConfig {
	pods := make([]PodConfig, len(c.podConfigs))
	copy(pods, c.podConfigs)
	return pods
}

// KVURL returns the KV endpoint owning podID, or "" for an unknown pod.
func (c Config) KVURL(podID int) string {
	for _, pod := range c.podConfigs {
		if pod.PodID == podID {
			return pod.KVURL
		}
	}
	return ""
}

func (c Config) EnableCPUAffinity() bool {
	return c.enableCPUAffinity
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) MaxDuration() time.Duration {
	return c.maxDuration
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) PolitenessDelay() time.Duration {
	return c.politenessDelay
}

func (c Config) RobotsCacheTTL() time.Duration {
	return c.robotsCacheTTL
}

// UserAgent expands the user-agent template with the configured contact
// email.
func (c Config) UserAgent() string {
	return strings.ReplaceAll(c.userAgentTemplate, "{email}", c.email)
}

func (c Config) Email() string {
	return c.email
}

func (c Config) ExcludeFile() string {
	return c.excludeFile
}

func (c Config) SeedFile() string {
	return c.seedFile
}

func (c Config) BloomCapacity() int64 {
	return c.bloomCapacity
}

func (c Config) BloomErrorRate() float64 {
	return c.bloomErrorRate
}

func (c Config) Resume() bool {
	return c.resume
}

func (c Config) ParseQueueSoftLimit() int64 {
	return c.parseQueueSoftLimit
}

func (c Config) ParseQueueHardLimit() int64 {
	return c.parseQueueHardLimit
}

func (c Config) DataDirs() []string {
	dirs := make([]string, len(c.dataDirs))
	copy(dirs, c.dataDirs)
	return dirs
}

func (c Config) LogDir() string {
	return c.logDir
}

func (c Config) PrometheusPort() int {
	return c.prometheusPort
}
