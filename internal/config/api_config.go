package config

import "time"

type APIConfig interface {
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the base URL of the CRM backend
// (e.g., "https://crm.example.com/api"). All auth endpoints hang off it.
func (API) GetAPIBaseURL() string {
	return GetEnv("CRM_API_BASE_URL", "http://localhost:8080/api")
}

func (API) GetHTTPTimeout() time.Duration {
	return GetDurationEnv("SESSION_HTTP_TIMEOUT", 30*time.Second)
}

func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
