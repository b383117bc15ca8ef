package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/joho/godotenv"
	"github.com/koding/multiconfig"
)

// Config defines evaluator configuration
type Config struct {
	// store
	Store           string `flagUsage:"submission store: memory or mongo" default:"memory"`
	MongoURI        string `flagUsage:"mongodb connection uri" default:"mongodb://localhost:27017"`
	MongoDatabase   string `flagUsage:"mongodb database" default:"evaluator"`
	MongoCollection string `flagUsage:"mongodb submission collection" default:"submissions"`

	// operator channel
	NATSURL     string `flagUsage:"nats server url, events are only logged when empty"`
	NATSSubject string `flagUsage:"nats subject of operator events" default:"evaluator.events"`

	// problems and toolchains
	ProblemDir   string `flagUsage:"specifies problem directory root" default:"problems"`
	LanguageConf string `flagUsage:"specifies language override file" default:"languages.yaml"`
	WorkDir      string `flagUsage:"specifies directory for compiled artifacts (temp dir by default)"`

	// scheduling
	Concurrency     int           `flagUsage:"control the # of submissions evaluated at the same time" default:"2"`
	RunnerSlots     int           `flagUsage:"control the # of concurrent processes (default equal to number of cpu)"`
	CaseParallelism int           `flagUsage:"control the # of testcases of one subtask run at the same time" default:"1"`
	ShortCircuit    bool          `flagUsage:"skip remaining testcases once a subtask score is fixed" default:"true"`
	PollInterval    time.Duration `flagUsage:"specifies pending submission poll interval" default:"1s"`
	MaxAttempts     int           `flagUsage:"specifies # of claims before an infrastructure fault aborts" default:"1"`
	RetryBackoff    time.Duration `flagUsage:"specifies backoff before re-claiming after a fault" default:"30s"`
	LeaseDuration   time.Duration `flagUsage:"specifies claim lease duration" default:"5m"`

	// runner limit
	TimeLimitCheckerInterval time.Duration `flagUsage:"specifies time and memory limit checker interval" default:"50ms"`
	ExtraMemoryLimit         *envexec.Size `flagUsage:"specifies extra memory buffer for check memory limit" default:"16k"`
	OutputLimit              *envexec.Size `flagUsage:"specifies output limit for each testcase" default:"64m"`

	// server config
	HTTPAddr      string `flagUsage:"specifies the http binding address" default:":5060"`
	MonitorAddr   string `flagUsage:"specifies the metrics binding address" default:":5062"`
	AuthToken     string `flagUsage:"bearer token auth for REST"`
	EnableDebug   bool   `flagUsage:"enable debug endpoint"`
	EnableMetrics bool   `flagUsage:"enable promethus metrics endpoint"`

	// logger config
	Release bool `flagUsage:"release level of logs"`
	Silent  bool `flagUsage:"do not print logs"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from .env, flag & environment variables
func (c *Config) Load() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "EV",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "EV",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	if err := cl.Load(c); err != nil {
		return err
	}
	if c.RunnerSlots <= 0 {
		c.RunnerSlots = runtime.NumCPU()
	}
	return nil
}
