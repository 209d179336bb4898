package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "time"     // time expresses the lock and sweep durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for costs,
// durations for the lock lifecycle.
type Config struct {
    Env            string        // application environment (e.g. "dev", "prod")
    Port           string        // HTTP port to listen on
    DBUser         string        // database username
    DBPass         string        // database password (optional)
    DBHost         string        // database host address
    DBPort         string        // database port number
    DBName         string        // database name
    JWTSecret      string        // secret used to sign JWTs
    AccessTTLMin   int           // access token time‑to‑live in minutes
    BcryptCost     int           // bcrypt cost for password hashing
    LockTTL        time.Duration // expiry stamped on every seat lock session
    SweepInterval  time.Duration // how often the coordinator reclaims expired locks
    GatewayURL     string        // base URL of the payment gateway
    VerifyAttempts int           // bounded retry budget for payment verification
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The seat-lock
// durations have sensible defaults so only deployments that tune them
// need to set the variables.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),      // environment (dev/test/prod)
        Port:           must("APP_PORT"),     // port to bind the HTTP server
        DBUser:         must("DB_USER"),      // database user
        DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:         must("DB_HOST"),      // database host
        DBPort:         must("DB_PORT"),      // database port
        DBName:         must("DB_NAME"),      // database name
        JWTSecret:      must("JWT_SECRET"),   // secret used for signing JWTs
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"), // TTL for access tokens in minutes
        BcryptCost:     mustInt("BCRYPT_COST"),          // bcrypt cost factor
        LockTTL:        envSeconds("LOCK_TTL_SEC", 300), // seat locks default to five minutes
        SweepInterval:  envSeconds("SWEEP_INTERVAL_SEC", 15),
        GatewayURL:     must("PAYMENT_GATEWAY_URL"),     // payment gateway base URL
        VerifyAttempts: envIntDefault("PAYMENT_VERIFY_ATTEMPTS", 5),
    }
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

// envSeconds reads an optional integer number of seconds, falling back
// to the given default when unset or malformed.
func envSeconds(key string, def int) time.Duration {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            return time.Duration(n) * time.Second
        }
        log.Printf("config: ignoring invalid %s=%q, using %ds", key, os.Getenv(key), def)
    }
    return time.Duration(def) * time.Second
}

// envIntDefault reads an optional integer with a default.
func envIntDefault(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            return n
        }
    }
    return def
}
