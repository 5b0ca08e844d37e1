package temporalx

import (
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/pkg/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	DialTimeout           time.Duration
	DialMaxWait           time.Duration

	// SweepInterval is the sleep between sweep activities inside SweepWorkflow.
	SweepInterval time.Duration
	// SweepIterations bounds one workflow run before it continues as new.
	SweepIterations int
	// WorkerConcurrency caps concurrent activities and workflow tasks.
	WorkerConcurrency int
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "upliftcs"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "upliftcs-playbooks"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		DialTimeout:           envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		DialMaxWait:           envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60*time.Second),

		SweepInterval:     envutil.Seconds("TEMPORAL_SWEEP_INTERVAL_SECONDS", time.Minute),
		SweepIterations:   envutil.Int("TEMPORAL_SWEEP_ITERATIONS", 500),
		WorkerConcurrency: envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 4),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
