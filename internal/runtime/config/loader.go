package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable Load consults, e.g.
// LIGHTMQ_SERVICE or LIGHTMQ_KAFKA_BROKERS.
const EnvPrefix = "LIGHTMQ"

// SetDefaults registers the client defaults on a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("topic", DefaultTopic)
	v.SetDefault("receive_batch", DefaultReceiveBatch)
	v.SetDefault("default_credit", DefaultCredit)
	v.SetDefault("poll_interval", DefaultPollInterval.String())
	v.SetDefault("idle_timeout", "0s")
}

// envKeys are bound explicitly: AutomaticEnv alone does not make keys without
// a default visible to Unmarshal.
var envKeys = []string{
	"service", "id", "user", "password", "tls_insecure_skip_verify",
	"kafka_brokers", "nats_url", "aws_region", "aws_account_id",
	"aws_access_key_id", "aws_secret_access_key", "aws_endpoint",
	"metrics_enabled",
}

// BindFlags registers the connection flags shared by the sample commands.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("config", "", "config file path")
	f.StringSlice("service", nil, "service URL (amqp:// or amqps://), may be repeated")
	f.String("id", "", "client id (default AUTO_xxxxxxx)")
	f.String("user", "", "user name")
	f.String("password", "", "password")
	f.String("transport", "", "transport backend (rabbitmq, channel, nats, kafka, aws)")

	_ = v.BindPFlag("service", f.Lookup("service"))
	_ = v.BindPFlag("id", f.Lookup("id"))
	_ = v.BindPFlag("user", f.Lookup("user"))
	_ = v.BindPFlag("password", f.Lookup("password"))
	_ = v.BindPFlag("transport", f.Lookup("transport"))
}

// Load reads config from defaults, an optional file, LIGHTMQ_* environment
// variables and bound flags, in increasing precedence.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("lightmq")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) || configFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		// Config file not found is OK if not explicitly specified
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.WithDefaults(), nil
}
