package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings splits list-valued variables
	"time"    // time parses durations and zones
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Everything the engine and the auth
// boundary need is carried here and injected at construction time; no
// component reads the environment on its own.
type Config struct {
	Env          string            // application environment (e.g. "dev", "prod")
	Port         string            // HTTP port to listen on
	DBUser       string            // database username
	DBPass       string            // database password (optional)
	DBHost       string            // database host address
	DBPort       string            // database port number
	DBName       string            // database name
	JWTSecret    string            // secret used to sign operator JWTs
	AccessTTLMin int               // operator access token time-to-live in minutes
	Operators    map[string]string // operator id -> bcrypt hash of the access key
	TokenTTL     time.Duration     // confirmation token time-to-live
	StatsLoc     *time.Location    // fixed reference zone for day statistics
	LaneTitles   []string          // lane titles seeded at startup, ids starting at 1
	AMQPURL      string            // RabbitMQ URL for dispatch notices (optional)
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		Operators:    parseOperators(os.Getenv("OPERATOR_KEYS")),
		TokenTTL:     envDur("CONFIRM_TOKEN_TTL", 15*time.Minute),
		StatsLoc:     loadLocation(os.Getenv("STATS_TZ")),
		LaneTitles:   parseLanes(os.Getenv("LANE_TITLES")),
		AMQPURL:      os.Getenv("AMQP_URL"), // empty -> local broker default
	}
}

// parseOperators parses OPERATOR_KEYS, a comma-separated list of
// id:bcrypt-hash pairs.  bcrypt hashes contain neither commas nor
// colons beyond the scheme prefix, so splitting on the first colon is
// safe.  An empty variable yields an empty set, which locks out every
// operator endpoint.
func parseOperators(raw string) map[string]string {
	ops := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, hash, ok := strings.Cut(pair, ":")
		if !ok || id == "" || hash == "" {
			log.Fatalf("invalid OPERATOR_KEYS entry: %q", pair)
		}
		ops[id] = hash
	}
	return ops
}

// parseLanes parses LANE_TITLES (comma-separated).  The default matches
// the two physical lanes the service started with.
func parseLanes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"Lane 1", "Lane 2"}
	}
	var titles []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// loadLocation resolves STATS_TZ, defaulting to UTC.  An unknown zone
// name is a configuration error.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid STATS_TZ %q: %v", name, err)
	}
	return loc
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
