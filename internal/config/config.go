package config

type Config interface {
	EnvConfig
	APIConfig
	SchedulerConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	API
	Scheduler
	Store
}

func New() Config {
	return mainConfig{}
}
