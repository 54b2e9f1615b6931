package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found. Deployments that inject
// configuration through the process environment run without one, so a
// missing file only reports false.
func SetupEnvFile() bool {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/foxpay to project root
		"../../../.env", // Fallback for deeper nesting
	}

	for _, envFile := range envFiles {
		loaded, err := godotenv.Read(envFile)
		if err == nil {
			Env = loaded
			return true
		}
	}

	Env = map[string]string{}
	return false
}

// Set overrides a single key in the loaded map. Used by tests and tooling.
func Set(key, value string) {
	if Env == nil {
		Env = map[string]string{}
	}
	Env[key] = value
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
