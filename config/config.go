package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Ev0rain/Phishly/models"
)

var (
	DB        *gorm.DB
	Redis     *redis.Client
	AppConfig Config
)

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	BrokerDB int    `json:"broker_db"`
	ResultDB int    `json:"result_db"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	UseTLS   bool   `json:"use_tls"`
	UseSSL   bool   `json:"use_ssl"`
	Mock     bool   `json:"mock"`
}

type Config struct {
	Environment  string `json:"environment"`
	ServerPort   string `json:"server_port"`
	TrackingPort string `json:"tracking_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	StoreBackend string `json:"store_backend"` // postgres or memory

	Redis RedisConfig `json:"redis"`
	SMTP  SMTPConfig  `json:"smtp"`

	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`

	// Tracking token secret. Tokens are HMAC(campaign,target), so this
	// must stay stable for the lifetime of a campaign.
	TrackingSecret string `json:"-"`

	PhishingDomain string `json:"phishing_domain"`
	PublicIP       string `json:"public_ip"`

	// Filesystem areas shared with the tracking server.
	TemplatesDir   string `json:"templates_dir"`
	DeploymentsDir string `json:"deployments_dir"`
	LegacyCacheDir string `json:"legacy_cache_dir"`
	DNSZoneDir     string `json:"dns_zone_dir"`

	SubmitRateLimit int `json:"submit_rate_limit"`

	WorkerCount      int `json:"worker_count"`
	SendMaxRetries   int `json:"send_max_retries"`
	SendRetryDelay   int `json:"send_retry_delay_seconds"`
	TaskTimeLimit    int `json:"task_time_limit_seconds"`
	TaskSoftLimit    int `json:"task_soft_limit_seconds"`
	ResultExpiry     int `json:"result_expiry_seconds"`
	SchedulerSweep   int `json:"scheduler_sweep_seconds"`
	BrokerPollPeriod int `json:"broker_poll_seconds"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		ServerPort:   getEnv("SERVER_PORT", "5000"),
		TrackingPort: getEnv("TRACKING_PORT", "8000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "phishly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		StoreBackend: getEnv("STORE_BACKEND", "postgres"),

		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			BrokerDB: getEnvAsInt("REDIS_BROKER_DB", 1),
			ResultDB: getEnvAsInt("REDIS_RESULT_DB", 2),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			UseTLS:   getEnvAsBool("SMTP_USE_TLS", true),
			UseSSL:   getEnvAsBool("SMTP_USE_SSL", false),
			Mock:     getEnvAsBool("SMTP_MOCK", false),
		},

		FromEmail: getEnv("FROM_EMAIL", "noreply@example.com"),
		FromName:  getEnv("FROM_NAME", ""),

		TrackingSecret: getEnv("TRACKING_SECRET_KEY", "default-tracking-secret-key"),

		PhishingDomain: getEnv("PHISHING_DOMAIN", "phishing.example.com"),
		PublicIP:       getEnv("PUBLIC_IP", ""),

		TemplatesDir:   getEnv("TEMPLATES_DIR", "/templates/landing_pages"),
		DeploymentsDir: getEnv("DEPLOYMENTS_DIR", "/app/campaign_landing_pages"),
		LegacyCacheDir: getEnv("CACHE_DIR", "/app/cache"),
		DNSZoneDir:     getEnv("DNS_ZONE_DIR", "/app/dns_zones"),

		SubmitRateLimit: getEnvAsInt("SUBMIT_RATE_LIMIT", 30),

		WorkerCount:      getEnvAsInt("WORKER_COUNT", 4),
		SendMaxRetries:   getEnvAsInt("SEND_MAX_RETRIES", 3),
		SendRetryDelay:   getEnvAsInt("SEND_RETRY_DELAY", 30),
		TaskTimeLimit:    getEnvAsInt("TASK_TIME_LIMIT", 300),
		TaskSoftLimit:    getEnvAsInt("TASK_SOFT_TIME_LIMIT", 270),
		ResultExpiry:     getEnvAsInt("RESULT_EXPIRES", 3600),
		SchedulerSweep:   getEnvAsInt("SCHEDULER_SWEEP_INTERVAL", 30),
		BrokerPollPeriod: getEnvAsInt("BROKER_POLL_INTERVAL", 1),
	}

	if AppConfig.StoreBackend == "postgres" && AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.TrackingSecret == "default-tracking-secret-key" {
			return fmt.Errorf("TRACKING_SECRET_KEY must be set in production")
		}
		if AppConfig.SMTP.Mock {
			log.Println("⚠️ SMTP_MOCK enabled in production - emails will NOT be sent")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// ConnectRedis opens the broker connection. The result backend uses a
// separate logical DB on the same server, mirroring the queue layout the
// system has always used.
func ConnectRedis() error {
	Redis = redis.NewClient(&redis.Options{
		Addr:     AppConfig.Redis.Address,
		Password: AppConfig.Redis.Password,
		DB:       AppConfig.Redis.BrokerDB,
	})
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Control port: %s, Tracking port: %s", AppConfig.ServerPort, AppConfig.TrackingPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Redis broker: %s (db %d), results (db %d)",
		AppConfig.Redis.Address,
		AppConfig.Redis.BrokerDB,
		AppConfig.Redis.ResultDB)
	log.Printf("SMTP: %s:%d (TLS: %t, SSL: %t, mock: %t)",
		AppConfig.SMTP.Host,
		AppConfig.SMTP.Port,
		AppConfig.SMTP.UseTLS,
		AppConfig.SMTP.UseSSL,
		AppConfig.SMTP.Mock)
	log.Printf("Phishing domain: %s", AppConfig.PhishingDomain)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Target{},
		&models.TargetList{},
		&models.TargetListMember{},
		&models.EmailTemplate{},
		&models.LandingPage{},
		&models.ActiveConfiguration{},
		&models.Campaign{},
		&models.CampaignTargetList{},
		&models.CampaignTarget{},
		&models.EmailJob{},
		&models.EventType{},
		&models.Event{},
		&models.FormSubmission{},
	)
}
