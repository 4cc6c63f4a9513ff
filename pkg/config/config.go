package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（启动时构造一次，之后只读）
type Config struct {
	Cadence         int              `yaml:"cadence_seconds" mapstructure:"cadence_seconds" env:"COLLECTOR_POLL_INTERVAL" validate:"required,gt=0" comment:"采集周期（秒）"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"required,gt=0" comment:"硬关闭截止时间"`
	Kafka           KafkaConfig      `yaml:"kafka" mapstructure:"kafka" comment:"Kafka 发布配置"`
	Server          ServerConfig     `yaml:"server" mapstructure:"server" comment:"运维 HTTP 端点"`
	Collectors      CollectorsConfig `yaml:"collectors" mapstructure:"collectors" comment:"各采集器配置"`
	Log             ZapLogConfig     `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// KafkaConfig broker 发布配置（linger/batch/compression 对应 producer 批量参数）
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers" env:"KAFKA_BOOTSTRAP_SERVERS" validate:"required,min=1,dive,hostname_port"`
	Topic        string        `yaml:"topic" mapstructure:"topic" env:"KAFKA_TOPIC" validate:"required"`
	ClientID     string        `yaml:"client_id" mapstructure:"client_id" validate:"required"`
	Linger       time.Duration `yaml:"linger" mapstructure:"linger" validate:"gte=0"`
	BatchBytes   int64         `yaml:"batch_bytes" mapstructure:"batch_bytes" validate:"gt=0"`
	Compression  string        `yaml:"compression" mapstructure:"compression" validate:"oneof=none gzip snappy lz4 zstd"`
	RequiredAcks string        `yaml:"required_acks" mapstructure:"required_acks" validate:"oneof=all one none"`
	FlushTimeout time.Duration `yaml:"flush_timeout" mapstructure:"flush_timeout" validate:"gt=0"`
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
}

// ServerConfig 运维 HTTP 端点（/metrics /health /status），不属于采集核心
type ServerConfig struct {
	Enable       bool          `yaml:"enable" mapstructure:"enable"`
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0"`
}

// CollectorsConfig collector-name -> 配置；注册顺序固定为 ontap, storagegrid, generic
type CollectorsConfig struct {
	Ontap       OntapConfig       `yaml:"ontap" mapstructure:"ontap"`
	StorageGrid StorageGridConfig `yaml:"storagegrid" mapstructure:"storagegrid"`
	Generic     GenericConfig     `yaml:"generic" mapstructure:"generic"`
}

// CollectorCommon 每个采集器共有的字段
type CollectorCommon struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	PollInterval int  `yaml:"poll_interval" mapstructure:"poll_interval" validate:"gte=0" comment:"仅供参考，周期以 cadence 为准"`
	Timeout      int  `yaml:"timeout" mapstructure:"timeout" validate:"gte=0" comment:"单次采集超时（秒）"`
}

// OntapConfig 存储集群采集器
type OntapConfig struct {
	CollectorCommon    `yaml:",inline" mapstructure:",squash"`
	APIEndpoint        string          `yaml:"api_endpoint" mapstructure:"api_endpoint" env:"ONTAP_API_ENDPOINT"`
	Username           string          `yaml:"username" mapstructure:"username" env:"ONTAP_USERNAME"`
	Password           string          `yaml:"password" mapstructure:"password" env:"ONTAP_PASSWORD"`
	InsecureSkipVerify bool            `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	Clusters           []ClusterTarget `yaml:"clusters" mapstructure:"clusters" validate:"dive"`
}

// ClusterTarget 一个被采集的集群；Endpoint 为空时使用 api_endpoint
type ClusterTarget struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint" validate:"omitempty,url"`
}

// StorageGridConfig 对象存储网格采集器
type StorageGridConfig struct {
	CollectorCommon    `yaml:",inline" mapstructure:",squash"`
	APIEndpoint        string       `yaml:"api_endpoint" mapstructure:"api_endpoint" env:"STORAGEGRID_API_ENDPOINT"`
	Token              string       `yaml:"token" mapstructure:"token"`
	InsecureSkipVerify bool         `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	Grids              []GridTarget `yaml:"grids" mapstructure:"grids" validate:"dive"`
}

// GridTarget 一个被采集的网格；Endpoint 为空时使用 api_endpoint
type GridTarget struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint" validate:"omitempty,url"`
}

// GenericConfig 通用采集器，数据源可插拔
type GenericConfig struct {
	CollectorCommon `yaml:",inline" mapstructure:",squash"`
	Sources         []SourceConfig `yaml:"sources" mapstructure:"sources" validate:"dive"`
}

// SourceConfig 通用数据源：内置 static / host / prometheus，其他类型在构造时按注册表解析
type SourceConfig struct {
	Name   string            `yaml:"name" mapstructure:"name" validate:"required"`
	Type   string            `yaml:"type" mapstructure:"type" validate:"required"`
	Value  float64           `yaml:"value,omitempty" mapstructure:"value"`
	URL    string            `yaml:"url,omitempty" mapstructure:"url" validate:"omitempty,url"`
	Query  string            `yaml:"query,omitempty" mapstructure:"query"`
	Metric string            `yaml:"metric,omitempty" mapstructure:"metric"`
	Labels map[string]string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"required,gt=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// CadenceDuration 采集周期
func (c *Config) CadenceDuration() time.Duration {
	return time.Duration(c.Cadence) * time.Second
}

// TimeoutDuration 单次采集超时，0 表示使用采集器默认值
func (c CollectorCommon) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Cadence:         60,
		ShutdownTimeout: 30 * time.Second,
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "dcn-metrics",
			ClientID:     "dcn-collector",
			Linger:       100 * time.Millisecond,
			BatchBytes:   16384,
			Compression:  "gzip",
			RequiredAcks: "all",
			FlushTimeout: 10 * time.Second,
			MaxAttempts:  3,
		},
		Server: ServerConfig{
			Enable:       true,
			Addr:         "0.0.0.0:9102",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		Collectors: CollectorsConfig{
			Ontap: OntapConfig{
				CollectorCommon: CollectorCommon{Enabled: false, PollInterval: 60, Timeout: 30},
				APIEndpoint:     "https://ontap-cluster",
				Username:        "admin",
				Clusters:        []ClusterTarget{},
			},
			StorageGrid: StorageGridConfig{
				CollectorCommon: CollectorCommon{Enabled: false, PollInterval: 60, Timeout: 30},
				APIEndpoint:     "https://storagegrid",
				Grids:           []GridTarget{},
			},
			Generic: GenericConfig{
				CollectorCommon: CollectorCommon{Enabled: false, PollInterval: 60, Timeout: 30},
				Sources:         []SourceConfig{},
			},
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// legacyEnv 兼容旧部署使用的环境变量名
var legacyEnv = map[string]string{
	"cadence_seconds":                     "COLLECTOR_POLL_INTERVAL",
	"kafka.brokers":                       "KAFKA_BOOTSTRAP_SERVERS",
	"kafka.topic":                         "KAFKA_TOPIC",
	"collectors.ontap.api_endpoint":       "ONTAP_API_ENDPOINT",
	"collectors.ontap.username":           "ONTAP_USERNAME",
	"collectors.ontap.password":           "ONTAP_PASSWORD",
	"collectors.storagegrid.api_endpoint": "STORAGEGRID_API_ENDPOINT",
	"collectors.storagegrid.token":        "STORAGEGRID_TOKEN",
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)，未指定则只用 flags + env
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// Load 读取配置文件（无 cobra 时使用，例如测试）
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （KAFKA_TOPIC -> kafka.topic）
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// BindEnv 会覆盖 AutomaticEnv 的默认名，因此两者都要绑定；默认名优先
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if c.Cadence > 3600 {
		return fmt.Errorf("cadence_seconds must be between 1 and 3600, got %d", c.Cadence)
	}
	// 	1,校验 Kafka 配置
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	// 	2，校验采集配置
	if err := c.Collectors.Validate(); err != nil {
		return err
	}
	// 	3，校验运维端点
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	4，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

// Redacted 返回隐藏了密码/令牌的副本（用于打印）
func (c *Config) Redacted() *Config {
	out := *c
	if out.Collectors.Ontap.Password != "" {
		out.Collectors.Ontap.Password = "******"
	}
	if out.Collectors.StorageGrid.Token != "" {
		out.Collectors.StorageGrid.Token = "******"
	}
	return &out
}
