package env

import (
	"fmt"
	"os"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	OperatorSecret   = "OPERATOR_SECRET"
	HandoffSecret    = "HANDOFF_SECRET"
	NotifyRedisURL   = "NOTIFY_REDIS_URL"
	NotifyRedisPass  = "NOTIFY_REDIS_PASS"
	WebUrl           = "WEB_URL"

	DispatchTimeoutMs = "DISPATCH_TIMEOUT_MS"
	DispatchWorkers   = "DISPATCH_WORKERS"
	LogLevel          = "LOG_LEVEL"
)

// MustValidate checks the variables every server needs before it can do
// useful work. Servers call it first thing in main so a bad deployment
// fails at startup, not on the first request.
func MustValidate() {
	required := []string{
		AWSRegion,
		AWSID,
		AWSSecret,
		OperatorSecret,
		HandoffSecret,
		NotifyRedisURL,
		WebUrl,
	}
	for _, key := range required {
		if os.Getenv(key) == "" {
			panic(fmt.Sprintf("env: required environment variable not set: %s", key))
		}
	}
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
