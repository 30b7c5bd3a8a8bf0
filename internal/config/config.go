package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Content   ContentConfig   `mapstructure:"content"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// LedgerConfig 链上合约配置
type LedgerConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	PrivateKey      string        `mapstructure:"private_key"`
	ChainID         int64         `mapstructure:"chain_id"`        // 0 表示从节点读取
	StartBlock      uint64        `mapstructure:"start_block"`     // 游标不存在时的起始区块
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchBlocks     uint64        `mapstructure:"batch_blocks"`    // 单次拉取的区块窗口
	Confirmations   uint64        `mapstructure:"confirmations"`
	WaitMined       bool          `mapstructure:"wait_mined"`      // 写入后等待回执
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
	MaxRedeliveries int           `mapstructure:"max_redeliveries"` // 同一窗口的投递上限，用尽后跳过失败事件
}

// OracleConfig 裁判服务配置
type OracleConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ContentConfig 内容存储配置
type ContentConfig struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// EngineConfig 进度引擎配置
type EngineConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"` // 0 表示关闭
}

// GeneratorConfig 关卡生成配置
type GeneratorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Themes   []string      `mapstructure:"themes"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultThemes 默认关卡主题
var DefaultThemes = []string{
	"Dragon's Lair",
	"Enchanted Forest",
	"Ancient Crypt",
	"Floating Citadel",
	"Underdark Caverns",
	"Celestial Temple",
	"Abyssal Rift",
	"Mechanical Forge",
}

// 兼容旧部署使用的环境变量名
var legacyEnv = map[string]string{
	"ledger.contract_address": "CONTRACT_ADDRESS",
	"ledger.private_key":      "GAME_MASTER_PRIVATE_KEY",
	"oracle.base_url":         "OPENAI_API_URL",
	"oracle.api_key":          "OPENAI_API_KEY",
	"oracle.model":            "OPENAI_MODEL",
	"database.dsn":            "DATABASE_PATH",
	"server.port":             "API_PORT",
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v, cfg, err = load(configPath)
	})

	return err
}

// Load 加载独立的配置实例，不影响全局配置
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	nv := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath("./config")
		nv.AddConfigPath(".")
	}

	// 设置环境变量前缀
	nv.SetEnvPrefix("GAMEMASTER")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	for key, env := range legacyEnv {
		_ = nv.BindEnv(key, "GAMEMASTER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	setDefaults(nv)

	if err := nv.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := nv.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if len(c.Generator.Themes) == 0 {
		c.Generator.Themes = DefaultThemes
	}

	return nv, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/gamemaster.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", false)

	// 链上默认配置
	v.SetDefault("ledger.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.start_block", 0)
	v.SetDefault("ledger.poll_interval", "5s")
	v.SetDefault("ledger.batch_blocks", 500)
	v.SetDefault("ledger.confirmations", 0)
	v.SetDefault("ledger.wait_mined", true)
	v.SetDefault("ledger.tx_timeout", "2m")
	v.SetDefault("ledger.max_redeliveries", 5)

	// 裁判默认配置
	v.SetDefault("oracle.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("oracle.model", "deepseek-chat")
	v.SetDefault("oracle.temperature", 0.7)
	v.SetDefault("oracle.max_tokens", 500)
	v.SetDefault("oracle.timeout", "30s")

	// 内容存储默认配置
	v.SetDefault("content.path", "./data/content.db")
	v.SetDefault("content.cache_ttl", "10m")

	// 引擎默认配置
	v.SetDefault("engine.concurrency", 16)
	v.SetDefault("engine.reconcile_interval", "1m")

	// 关卡生成默认配置
	v.SetDefault("generator.enabled", false)
	v.SetDefault("generator.interval", "1h")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "gamemaster.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验运行所需的配置项
func (c *Config) Validate() error {
	if c.Ledger.ContractAddress == "" {
		return fmt.Errorf("缺少配置项: ledger.contract_address")
	}
	if c.Ledger.PrivateKey == "" {
		return fmt.Errorf("缺少配置项: ledger.private_key")
	}
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("缺少配置项: ledger.rpc_url")
	}
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("缺少配置项: oracle.api_key")
	}
	if c.Ledger.BatchBlocks == 0 {
		return fmt.Errorf("ledger.batch_blocks 必须大于0")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency 必须大于0")
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if len(newCfg.Generator.Themes) == 0 {
			newCfg.Generator.Themes = DefaultThemes
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
