package config

import (
	"database/sql"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Worker      Worker        `yaml:"worker"`
	Sweep       Sweep         `yaml:"sweep"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

// Worker holds the shared secret the external render fleet presents on
// claim/status/heartbeat calls, and the lease window after which a
// running job may be reclaimed.
type Worker struct {
	Secret          string `yaml:"secret"`
	LeaseTTLMinutes int    `yaml:"lease_ttl_minutes"`
	ConsumerWorkers int    `yaml:"consumer_workers"`
}

type Sweep struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	StuckMinutes    int `yaml:"stuck_minutes"`
	MaxRetries      int `yaml:"max_retries"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("worker.lease_ttl_minutes", 5)
	viper.SetDefault("worker.consumer_workers", 4)
	viper.SetDefault("sweep.stuck_minutes", 5)
	viper.SetDefault("sweep.max_retries", 3)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host:         viper.GetString("rabbitmq_host"),
		Port:         viper.GetInt("rabbitmq_port"),
		User:         viper.GetString("rabbitmq_user"),
		Pass:         viper.GetString("rabbitmq_pass"),
		ExchangeName: viper.GetString("rabbitmq_exchange"),
		Kind:         viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Worker: Worker{
			Secret:          viper.GetString("worker.secret"),
			LeaseTTLMinutes: viper.GetInt("worker.lease_ttl_minutes"),
			ConsumerWorkers: viper.GetInt("worker.consumer_workers"),
		},
		Sweep: Sweep{
			IntervalSeconds: viper.GetInt("sweep.interval_seconds"),
			StuckMinutes:    viper.GetInt("sweep.stuck_minutes"),
			MaxRetries:      viper.GetInt("sweep.max_retries"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
