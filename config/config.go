package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxRetries         = 3
	defaultMaxConcurrent      = 3
	defaultProcessInterval    = 5 * time.Second
	defaultProcessedCacheSize = 1000
	defaultBlockIndexInterval = 10 * time.Second
	defaultRPCTimeout         = 30 * time.Second
)

type LogLevel logrus.Level

func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("can't parse log level: %w", err)
	}
	*l = LogLevel(level)
	return nil
}

func (l *LogLevel) Level() logrus.Level {
	return logrus.Level(*l)
}

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *RPCConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Host    string `yaml:"host"`
		Timeout string `yaml:"timeout"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Host = raw.Host
	c.Timeout = defaultRPCTimeout
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("can't parse rpc timeout: %w", err)
		}
		c.Timeout = timeout
	}
	return nil
}

type WSConfig struct {
	Host string `yaml:"host"`
}

type ChainConfig struct {
	RPC                *RPCConfig    `yaml:"rpc"`
	WS                 *WSConfig     `yaml:"ws"`
	ChainID            string        `yaml:"chain_id"`
	BlockIndexInterval time.Duration `yaml:"block_index_interval"`
}

func (c *ChainConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		RPC                *RPCConfig `yaml:"rpc"`
		WS                 *WSConfig  `yaml:"ws"`
		ChainID            string     `yaml:"chain_id"`
		BlockIndexInterval string     `yaml:"block_index_interval"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.RPC = raw.RPC
	c.WS = raw.WS
	c.ChainID = raw.ChainID
	c.BlockIndexInterval = defaultBlockIndexInterval
	if raw.BlockIndexInterval != "" {
		interval, err := time.ParseDuration(raw.BlockIndexInterval)
		if err != nil {
			return fmt.Errorf("can't parse block index interval: %w", err)
		}
		c.BlockIndexInterval = interval
	}
	return nil
}

type SourceContracts struct {
	LoanRegistry      common.Address `yaml:"loan_registry"`
	MarketplaceBridge common.Address `yaml:"marketplace_bridge"`
}

type DestinationContracts struct {
	LoanNFT            common.Address `yaml:"loan_nft"`
	BridgeReceiver     common.Address `yaml:"bridge_receiver"`
	PaymentDistributor common.Address `yaml:"payment_distributor"`
	Marketplace        common.Address `yaml:"marketplace"`
}

type SourceSideConfig struct {
	ChainName string           `yaml:"chain"`
	Chain     *ChainConfig     `yaml:"-"`
	Contracts *SourceContracts `yaml:"contracts"`
}

type DestinationSideConfig struct {
	ChainName string                `yaml:"chain"`
	Chain     *ChainConfig          `yaml:"-"`
	Contracts *DestinationContracts `yaml:"contracts"`
}

type BridgeConfig struct {
	Source      *SourceSideConfig      `yaml:"source"`
	Destination *DestinationSideConfig `yaml:"destination"`
}

type QueueConfig struct {
	MaxRetries         uint          `yaml:"max_retries"`
	ProcessInterval    time.Duration `yaml:"process_interval"`
	MaxConcurrent      uint          `yaml:"max_concurrent"`
	ProcessedCacheSize uint          `yaml:"processed_cache_size"`
}

func (c *QueueConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		MaxRetries         uint   `yaml:"max_retries"`
		ProcessInterval    string `yaml:"process_interval"`
		MaxConcurrent      uint   `yaml:"max_concurrent"`
		ProcessedCacheSize uint   `yaml:"processed_cache_size"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.MaxRetries = raw.MaxRetries
	c.MaxConcurrent = raw.MaxConcurrent
	c.ProcessedCacheSize = raw.ProcessedCacheSize
	c.ProcessInterval = defaultProcessInterval
	if raw.ProcessInterval != "" {
		interval, err := time.ParseDuration(raw.ProcessInterval)
		if err != nil {
			return fmt.Errorf("can't parse queue process interval: %w", err)
		}
		c.ProcessInterval = interval
	}
	return nil
}

type KeysConfig struct {
	Relayer    string   `yaml:"relayer"`
	Validators []string `yaml:"validators"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     uint   `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	LogLevel  *LogLevel               `yaml:"log_level"`
	Chains    map[string]*ChainConfig `yaml:"chains"`
	Bridge    *BridgeConfig           `yaml:"bridge"`
	Queue     *QueueConfig            `yaml:"queue"`
	Keys      *KeysConfig             `yaml:"keys"`
	DBConfig  *DBConfig               `yaml:"postgres"`
	Presenter *PresenterConfig        `yaml:"presenter"`
}

func (cfg *Config) init() error {
	if cfg.Bridge == nil || cfg.Bridge.Source == nil || cfg.Bridge.Destination == nil {
		return fmt.Errorf("bridge source and destination sides are required")
	}
	src, dst := cfg.Bridge.Source, cfg.Bridge.Destination
	var ok bool
	if src.Chain, ok = cfg.Chains[src.ChainName]; !ok {
		return fmt.Errorf("unknown source chain %q", src.ChainName)
	}
	if dst.Chain, ok = cfg.Chains[dst.ChainName]; !ok {
		return fmt.Errorf("unknown destination chain %q", dst.ChainName)
	}
	for name, chain := range cfg.Chains {
		if chain.RPC == nil || chain.RPC.Host == "" {
			return fmt.Errorf("chain %q is missing rpc host", name)
		}
		if chain.WS == nil || chain.WS.Host == "" {
			return fmt.Errorf("chain %q is missing ws host", name)
		}
	}
	if src.Contracts == nil || dst.Contracts == nil {
		return fmt.Errorf("bridge contract addresses are required on both sides")
	}
	if cfg.Keys == nil || cfg.Keys.Relayer == "" {
		return fmt.Errorf("relayer key is required")
	}
	if len(cfg.Keys.Validators) == 0 {
		return fmt.Errorf("at least one validator key is required")
	}
	if cfg.Queue == nil {
		cfg.Queue = &QueueConfig{ProcessInterval: defaultProcessInterval}
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = defaultMaxRetries
	}
	if cfg.Queue.MaxConcurrent == 0 {
		cfg.Queue.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Queue.ProcessedCacheSize == 0 {
		cfg.Queue.ProcessedCacheSize = defaultProcessedCacheSize
	}
	if cfg.LogLevel == nil {
		level := LogLevel(logrus.InfoLevel)
		cfg.LogLevel = &level
	}
	return nil
}

// ReadConfigWithEnv parses the yaml config blob, expanding ${VAR} references
// from the process environment. Key material never appears in the file itself.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
