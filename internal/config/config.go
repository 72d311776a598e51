package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	HTTP HTTP   `mapstructure:"http"`
	RTC  RTC    `mapstructure:"rtc"`
	Peer Peer   `mapstructure:"peer"`
	Rec  Rec    `mapstructure:"record"`
}

type HTTP struct {
	Addr      string `mapstructure:"addr"`
	Port      int    `mapstructure:"port"`
	SSLCrt    string `mapstructure:"ssl_crt"`
	SSLKey    string `mapstructure:"ssl_key"`
	Secret    string `mapstructure:"secret"`
	ReadLimit int64  `mapstructure:"read_limit"`
}

type RTC struct {
	// One worker per core when zero.
	Workers    int    `mapstructure:"workers"`
	RtcMinPort int    `mapstructure:"rtc_min_port"`
	RtcMaxPort int    `mapstructure:"rtc_max_port"`
	ListenIP   string `mapstructure:"listen_ip"`
}

type Peer struct {
	// Clients are expected to heartbeat every HeartbeatHint.
	HeartbeatHint time.Duration `mapstructure:"heartbeat_hint"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	JoinLimit     int           `mapstructure:"join_limit"`
	JoinWindow    time.Duration `mapstructure:"join_window"`
}

type Rec struct {
	Binary  string `mapstructure:"binary"`
	OutDir  string `mapstructure:"out_dir"`
	MinPort int    `mapstructure:"min_port"`
	MaxPort int    `mapstructure:"max_port"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("http.addr", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.ssl_crt", "./cert/localhost.crt")
	v.SetDefault("http.ssl_key", "./cert/localhost.key")
	v.SetDefault("http.secret", "openmeet-dev-secret")
	v.SetDefault("http.read_limit", 32768)
	v.SetDefault("rtc.workers", 0)
	v.SetDefault("rtc.rtc_min_port", 40000)
	v.SetDefault("rtc.rtc_max_port", 50000)
	v.SetDefault("rtc.listen_ip", "127.0.0.1")
	v.SetDefault("peer.heartbeat_hint", "5s")
	v.SetDefault("peer.reap_interval", "3s")
	v.SetDefault("peer.stale_after", "15s")
	v.SetDefault("peer.join_limit", 10)
	v.SetDefault("peer.join_window", "10s")
	v.SetDefault("record.binary", "ffmpeg")
	v.SetDefault("record.out_dir", "./files")
	v.SetDefault("record.min_port", 50000)
	v.SetDefault("record.max_port", 59999)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
