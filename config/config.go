// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// 鍵保管バックエンド設定
	CustodyBackend      string // file | gcpkms | awskms
	CustodyDir          string
	CustodyMasterSecret string
	KMSKeyRing          string
	AWSRegion           string
	AWSKeyAliasPrefix   string

	// 鍵ローテーションポリシー
	UserKeyMaxAge time.Duration
	CAKeyMaxAge   time.Duration
	GracePeriod   time.Duration

	// CA識別情報
	CAName         string
	CAOrganization string
	CACountry      string

	// トレーシング設定
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
	GoogleCloudProject string
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		CustodyBackend:      getEnv("CUSTODY_BACKEND", "file"),
		CustodyDir:          getEnv("CUSTODY_DIR", "./custody"),
		CustodyMasterSecret: os.Getenv("CUSTODY_MASTER_SECRET"),
		KMSKeyRing:          os.Getenv("KMS_KEY_RING"),
		AWSRegion:           os.Getenv("AWS_REGION"),
		AWSKeyAliasPrefix:   getEnv("AWS_KEY_ALIAS_PREFIX", "alias/txcert/"),

		UserKeyMaxAge: getEnvDays("USER_KEY_MAX_AGE_DAYS", 365),
		CAKeyMaxAge:   getEnvDays("CA_KEY_MAX_AGE_DAYS", 1095),
		GracePeriod:   getEnvDays("KEY_GRACE_PERIOD_DAYS", 30),

		CAName:         getEnv("CA_NAME", "Transaction Certification Authority"),
		CAOrganization: getEnv("CA_ORGANIZATION", "Transaction Certification Service"),
		CACountry:      getEnv("CA_COUNTRY", "JP"),

		OtelEnabled:        getEnv("OTEL_ENABLED", "false") == "true",
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "transaction-certification-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 0.1),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDays(key string, defaultDays int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if days, err := strconv.Atoi(val); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	return time.Duration(defaultDays) * 24 * time.Hour
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
