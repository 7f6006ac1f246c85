// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	ReportDriverFS = "fs"
	ReportDriverS3 = "s3"
)

type MySQL struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type S3 struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

type Config struct {
	ServiceName string
	LogLevel    string

	HTTPAddr string
	GRPCAddr string

	DBDriver   string
	DBDSN      string
	SQLitePath string
	MySQL      MySQL

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration

	ReportDriver string
	ReportDir    string
	S3           S3

	NotifyWebhookURL  string
	WorkerConcurrency int
	MonitorEnabled    bool
}

// Load reads the configuration. Missing .env files are not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ServiceName: str("DUKA_SERVICE_NAME", "duka"),
		LogLevel:    str("DUKA_LOG_LEVEL", "info"),
		HTTPAddr:    str("DUKA_HTTP_ADDR", ":8080"),
		GRPCAddr:    str("DUKA_GRPC_ADDR", ":50051"),
		DBDriver:    strings.ToLower(str("DUKA_DB_DRIVER", DriverMySQL)),
		DBDSN:       os.Getenv("DUKA_DB_DSN"),
		SQLitePath:  str("DUKA_SQLITE_PATH", "duka.db"),
		MySQL: MySQL{
			Host:     str("DUKA_MYSQL_HOST", "localhost"),
			Port:     str("DUKA_MYSQL_PORT", "3306"),
			User:     str("DUKA_MYSQL_USER", "root"),
			Password: str("DUKA_MYSQL_PASSWORD", "root"),
			Database: str("DUKA_MYSQL_DATABASE", "duka"),
		},
		RedisAddr:     str("DUKA_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("DUKA_REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("DUKA_JWT_SECRET"),
		ReportDriver:  strings.ToLower(str("DUKA_REPORT_DRIVER", ReportDriverFS)),
		ReportDir:     str("DUKA_REPORT_DIR", "./reports"),
		S3: S3{
			Bucket:          os.Getenv("DUKA_S3_BUCKET"),
			Region:          str("DUKA_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("DUKA_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("DUKA_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("DUKA_S3_SECRET_ACCESS_KEY"),
		},
		NotifyWebhookURL: os.Getenv("DUKA_NOTIFY_WEBHOOK_URL"),
	}

	var err error
	if cfg.RedisDB, err = integer("DUKA_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = integer("DUKA_WORKER_CONCURRENCY", 10); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = duration("DUKA_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = duration("DUKA_REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("DUKA_IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.S3.PathStyle, err = boolean("DUKA_S3_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if cfg.MonitorEnabled, err = boolean("DUKA_MONITOR_ENABLED", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DUKA_DB_DRIVER %q", c.DBDriver)
	}
	switch c.ReportDriver {
	case ReportDriverFS:
	case ReportDriverS3:
		if c.S3.Bucket == "" {
			return errors.New("DUKA_S3_BUCKET required for s3 report driver")
		}
	default:
		return fmt.Errorf("unsupported DUKA_REPORT_DRIVER %q", c.ReportDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("DUKA_JWT_SECRET is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("DUKA_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == DriverSQLite {
		return SQLiteDSN(c.SQLitePath)
	}
	m := mysql.NewConfig()
	m.User = c.MySQL.User
	m.Passwd = c.MySQL.Password
	m.Net = "tcp"
	m.Addr = net.JoinHostPort(c.MySQL.Host, c.MySQL.Port)
	m.DBName = c.MySQL.Database
	m.ParseTime = true
	// migrations ship several statements per file
	m.MultiStatements = true
	return m.FormatDSN()
}

// SQLiteDSN enables foreign keys and a busy timeout on a database file.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func boolean(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
