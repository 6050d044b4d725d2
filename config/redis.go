package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// RedisConfig defines the connection settings for the shared price store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the host:port to dial. In prod the host is resolved from
// SSM Parameter Store, falling back to the local config value.
func (cfg *RedisConfig) Addr(env string) string {
	if env == "prod" {
		if host := getParameterStoreValue("PRICE_TRACKER_REDIS_HOST", false); host != "" {
			return fmt.Sprintf("%s:%d", host, cfg.Port)
		}
	}
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Credential returns the store password. In prod it is fetched decrypted
// from SSM Parameter Store, falling back to the local config value.
func (cfg *RedisConfig) Credential(env string) string {
	if env == "prod" {
		if pw := getParameterStoreValue("PRICE_TRACKER_REDIS_PASSWORD", true); pw != "" {
			return pw
		}
	}
	return cfg.Password
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return ""
	}

	if result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
