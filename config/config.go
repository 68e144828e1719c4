package config

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     Server
	Bun        BunConfig
	AMQP       AMQPConfig
	Chat       ChatConfig
	LoggerMode LoggerMode
}

type Server struct {
	Port        string
	Environment string
}

type BunConfig struct {
	DSN string
}

// AMQPConfig enables the cross-node event relay. Empty URL means
// single-node operation with the in-process hub only.
type AMQPConfig struct {
	URL      string
	Exchange string
}

type ChatConfig struct {
	// WaitingTTL is how long an unclaimed conversation may sit in the
	// waiting queue before the sweep closes it.
	WaitingTTL time.Duration
	// SweepInterval is how often the stale-waiting sweep runs.
	SweepInterval time.Duration
	// AttachmentDir is where the local file store writes uploads.
	AttachmentDir string
}

type LoggerMode struct {
	Development bool
	Prod        bool
	Level       string
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AutomaticEnv()

	v.SetDefault("chat.waitingttl", 24*time.Hour)
	v.SetDefault("chat.sweepinterval", 10*time.Minute)
	v.SetDefault("amqp.exchange", "chat.events")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}
	return &c, nil
}
