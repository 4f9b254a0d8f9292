package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Forum    ForumConfig
	LLM      LLMConfig
	Bot      BotConfig
	Store    StoreConfig
	MongoDB  MongoDBConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	MinIO    MinIOConfig
	Consul   ConsulConfig
	Admin    AdminConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ServiceName    string
	ServiceID      string
	ServiceAddress string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// Upper bound for processing a single webhook delivery
	HandlerTimeout time.Duration
}

type ForumConfig struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	RetryMax   int
	RetryDelay time.Duration
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	ClassifyModel  string
	VisionModel    string
	Temperature    float64
	SearchEnabled  bool
	SearchRSSFeeds []string
	Timeout        time.Duration
	RetryMax       int
	RetryDelay     time.Duration
}

type BotConfig struct {
	UserID            string
	UserName          string
	QuizForumID       string
	QuizStartPhrase   string
	QuizTopicTitle    string
	DefaultCategory   string
	InactivityTimeout time.Duration
	// How long a reply claim blocks a replayed delivery of the same mention
	ReplyClaimTTL time.Duration
}

type StoreConfig struct {
	// mongo, mysql or memory
	Driver string
}

type MongoDBConfig struct {
	URI      string
	Database string
	PoolSize uint64
	Timeout  time.Duration
}

type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URI          string
	ExchangeName string
	QueueName    string
}

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	ImageBucket     string
	PresignExpiry   time.Duration
}

type ConsulConfig struct {
	Address string
}

type AdminConfig struct {
	JWTSecret string
}

type LogConfig struct {
	Dir string
}

// Load loads the configuration from the environment, reading a .env file first when present
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "5000"),
			Host:           getEnv("HOST", "0.0.0.0"),
			ServiceName:    getEnv("SERVICE_NAME", "forum-bot-service"),
			ServiceID:      getEnv("SERVICE_NAME", "forum-bot-service") + "-" + getEnv("HOSTNAME", "1"),
			ServiceAddress: getEnv("SERVICE_ADDRESS", "forum-bot-service"),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
			HandlerTimeout: getEnvAsDuration("WEBHOOK_HANDLER_TIMEOUT", 180*time.Second),
		},
		Forum: ForumConfig{
			BaseURL:    getEnv("FORUM_API_URL", "https://forum.wrestling.pl/api"),
			APIKey:     getEnv("FORUM_API_KEY", ""),
			UserAgent:  getEnv("FORUM_USER_AGENT", "MyUserAgent/1.0"),
			Timeout:    getEnvAsDuration("FORUM_TIMEOUT", 30*time.Second),
			RetryMax:   getEnvAsInt("FORUM_RETRY_MAX", 2),
			RetryDelay: getEnvAsDuration("FORUM_RETRY_DELAY", 2*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("XAI_API_URL", "https://api.x.ai/v1"),
			APIKey:         getEnv("XAI_API_KEY", ""),
			Model:          getEnv("XAI_MODEL", "grok-3-latest"),
			ClassifyModel:  getEnv("XAI_CLASSIFY_MODEL", "grok-2-1212"),
			VisionModel:    getEnv("XAI_VISION_MODEL", "grok-2-vision-latest"),
			Temperature:    getEnvAsFloat("XAI_TEMPERATURE", 0.2),
			SearchEnabled:  getEnvAsBool("XAI_SEARCH_ENABLED", true),
			SearchRSSFeeds: []string{getEnv("XAI_SEARCH_RSS", "https://forum.wrestling.pl/cagematch/events_rss.xml")},
			Timeout:        getEnvAsDuration("XAI_TIMEOUT", 120*time.Second),
			RetryMax:       getEnvAsInt("XAI_RETRY_MAX", 2),
			RetryDelay:     getEnvAsDuration("XAI_RETRY_DELAY", 2*time.Second),
		},
		Bot: BotConfig{
			UserID:            getEnv("USER_MENTION_ID", "23055"),
			UserName:          getEnv("USER_MENTION_NAME", "xAttitude"),
			QuizForumID:       getEnv("QUIZ_FORUM_ID", "233"),
			QuizStartPhrase:   getEnv("QUIZ_START_PHRASE", "start quiz"),
			QuizTopicTitle:    getEnv("QUIZ_TOPIC_TITLE", "Nowy Quiz Wrestlingowy"),
			DefaultCategory:   getEnv("QUIZ_DEFAULT_CATEGORY", "wrestling"),
			InactivityTimeout: getEnvAsDuration("CONVERSATION_TIMEOUT", 15*time.Minute),
			ReplyClaimTTL:     getEnvAsDuration("REPLY_CLAIM_TTL", 24*time.Hour),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "mongo"),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://mongodb:27017"),
			Database: getEnv("FORUM_BOT_MONGO_DB", "forum_bot"),
			PoolSize: getEnvAsUint64("MONGODB_POOL_SIZE", 100),
			Timeout:  getEnvAsDuration("MONGODB_TIMEOUT", 10*time.Second),
		},
		MySQL: MySQLConfig{
			Host:     getEnv("DB_HOST", "mysql"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "forum_bot"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URI:          getEnv("RABBITMQ_URI", ""),
			ExchangeName: getEnv("RABBITMQ_EXCHANGE", "forumbot.events"),
			QueueName:    getEnv("RABBITMQ_QUEUE", "forum-bot-commands"),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", ""),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:          getEnvAsBool("MINIO_USE_SSL", false),
			Region:          getEnv("MINIO_REGION", "us-east-1"),
			ImageBucket:     getEnv("MINIO_IMAGE_BUCKET", "forum-images"),
			PresignExpiry:   getEnvAsDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Consul: ConsulConfig{
			Address: getEnv("CONSUL_ADDRESS", ""),
		},
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
		Log: LogConfig{
			Dir: getEnv("LOG_DIR", "logs"),
		},
	}
}

// Validate checks the settings the bot cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.Forum.APIKey == "" {
		errs = append(errs, errors.New("FORUM_API_KEY is required"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("XAI_API_KEY is required"))
	}
	switch c.Store.Driver {
	case "mongo", "mysql", "memory":
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be one of mongo, mysql, memory"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Error converting %s to int: %v", key, err)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			log.Printf("Error converting %s to uint64: %v", key, err)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Printf("Error converting %s to float: %v", key, err)
			return defaultValue
		}
		return floatVal
	}
	return defaultValue
}

// getEnvAsDuration reads a whole number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Error converting %s to duration: %v", key, err)
			return defaultValue
		}
		return time.Duration(intVal) * time.Second
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Error converting %s to bool: %v", key, err)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}
