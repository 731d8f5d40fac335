package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/service/notify"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultKafkaTopic   = notify.DefaultKafkaTopic
	defaultLookupRate   = 5.0
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the pointledger service will be run
	ListenAddr string

	// Database to connect to. Balances are kept in memory if empty
	DatabaseDSN string

	// Secret key
	// Card codes are signed with it, so it has to be the same on every instance
	SecretKey string

	// Environment
	Environment string

	// Balance events are published to redis channel if set
	RedisAddr string

	// Balance events are produced to kafka topic if brokers set
	KafkaBrokers []string
	KafkaTopic   string

	// YAML catalog of merchants, rules, rewards and customers applied on start
	SeedFile string

	// Customer lookups per second allowed for one client address, 0 disables limit
	LookupRate float64
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
		KafkaTopic:  defaultKafkaTopic,
		LookupRate:  defaultLookupRate,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setList := func(o *[]string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = splitList(value)
			}
		}
	}

	var errs []error
	setFloat := func(o *float64) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid number %q: %w", value, err))
				return
			}
			*o = v
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":   setString(&c.ListenAddr),
		"DATABASE_URI":  setString(&c.DatabaseDSN),
		"SECRET_KEY":    setString(&c.SecretKey),
		"LOG_LEVEL":     setString(&c.LogLevel),
		"ENVIRONMENT":   setString(&c.Environment),
		"REDIS_ADDR":    setString(&c.RedisAddr),
		"KAFKA_BROKERS": setList(&c.KafkaBrokers),
		"KAFKA_TOPIC":   setString(&c.KafkaTopic),
		"SEED_FILE":     setString(&c.SeedFile),

		"LOOKUP_RATE_LIMIT": setFloat(&c.LookupRate),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("pointledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, in-memory storage if empty")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign card codes")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "R", c.RedisAddr, "Redis address to publish balance events to")
	fs.StringSliceVarP(&c.KafkaBrokers, "kafka-brokers", "k", c.KafkaBrokers, "Kafka brokers to produce balance events to")
	fs.StringVarP(&c.KafkaTopic, "kafka-topic", "t", c.KafkaTopic, "Kafka topic for balance events")
	fs.StringVarP(&c.SeedFile, "seed", "f", c.SeedFile, "YAML catalog applied on start")
	fs.Float64VarP(&c.LookupRate, "lookup-rate", "L", c.LookupRate, "Customer lookups per second per client, 0 disables limit")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if c.LookupRate < 0 {
		return errors.New("lookup rate must not be negative")
	}
	return nil
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
