package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string
	MessagesDir string

	// replay parsing
	ReplayMinTurns        int
	ReplayMaxDecodedBytes int64
	ReplayMaxDepth        int
	ReplayMaxNodes        int
	ReplayRequireRanked   bool
	ReplayRejectDesync    bool

	IngestWorkers         int
	ReplayCacheTTLSec     int
	ReplayFetchTimeoutSec int
	ReplayFetchMaxBytes   int

	// multiplayer server login
	WesnothHost           string
	WesnothPort           int
	WesnothClientVersion  string
	WesnothLoginTimeoutMS int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ReplayMinTurns:        replay.DefaultMinTurns,
		ReplayMaxDecodedBytes: replay.DefaultMaxDecodedBytes,
		ReplayMaxDepth:        replay.DefaultMaxDepth,
		ReplayMaxNodes:        replay.DefaultMaxNodes,
		IngestWorkers:         defaultWorkers(),
		ReplayCacheTTLSec:     86400,
		ReplayFetchTimeoutSec: 15,
		ReplayFetchMaxBytes:   16 << 20,
		WesnothHost:           mpclient.DefaultHost,
		WesnothPort:           mpclient.DefaultPort,
		WesnothClientVersion:  mpclient.DefaultClientVersion,
		WesnothLoginTimeoutMS: 10000,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	// Replay policy keys are strict: a typo would otherwise change what gets
	// accepted and which cache partition is used.
	if err := policyInt("REPLAY_MIN_TURNS", 0, &cfg.ReplayMinTurns); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(os.Getenv("REPLAY_MAX_DECODED_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("REPLAY_MAX_DECODED_BYTES: want a positive integer, got %q", v)
		}
		cfg.ReplayMaxDecodedBytes = n
	}
	if err := policyInt("REPLAY_MAX_DEPTH", 1, &cfg.ReplayMaxDepth); err != nil {
		return nil, err
	}
	if err := policyInt("REPLAY_MAX_NODES", 1, &cfg.ReplayMaxNodes); err != nil {
		return nil, err
	}
	if err := policyBool("REPLAY_REQUIRE_RANKED", &cfg.ReplayRequireRanked); err != nil {
		return nil, err
	}
	if err := policyBool("REPLAY_REJECT_DESYNC", &cfg.ReplayRejectDesync); err != nil {
		return nil, err
	}

	positiveInt("INGEST_WORKERS", &cfg.IngestWorkers)
	positiveInt("REPLAY_CACHE_TTL_SEC", &cfg.ReplayCacheTTLSec)
	positiveInt("REPLAY_FETCH_TIMEOUT_SEC", &cfg.ReplayFetchTimeoutSec)
	positiveInt("REPLAY_FETCH_MAX_BYTES", &cfg.ReplayFetchMaxBytes)
	positiveInt("WESNOTH_PORT", &cfg.WesnothPort)
	positiveInt("WESNOTH_LOGIN_TIMEOUT_MS", &cfg.WesnothLoginTimeoutMS)

	if v := strings.TrimSpace(os.Getenv("WESNOTH_HOST")); v != "" {
		cfg.WesnothHost = v
	}
	if v := strings.TrimSpace(os.Getenv("WESNOTH_CLIENT_VERSION")); v != "" {
		cfg.WesnothClientVersion = v
	}

	if cfg.WesnothPort > 65535 {
		return nil, errors.New("WESNOTH_PORT out of range")
	}
	if err := cfg.ReplayPolicy().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReplayPolicy builds the per-call parse policy.
func (c *AppConfig) ReplayPolicy() replay.Policy {
	return replay.Policy{
		MinTurns:        c.ReplayMinTurns,
		MaxDecodedBytes: c.ReplayMaxDecodedBytes,
		MaxDepth:        c.ReplayMaxDepth,
		MaxNodes:        c.ReplayMaxNodes,
		RequireRanked:   c.ReplayRequireRanked,
		RejectDesync:    c.ReplayRejectDesync,
	}
}

// LoginRequest fills the server coordinates for a credential check.
func (c *AppConfig) LoginRequest(username, credential string) mpclient.Request {
	return mpclient.Request{
		Host:          c.WesnothHost,
		Port:          c.WesnothPort,
		Username:      username,
		Credential:    credential,
		ClientVersion: c.WesnothClientVersion,
		Timeout:       time.Duration(c.WesnothLoginTimeoutMS) * time.Millisecond,
	}
}

func (c *AppConfig) ReplayCacheTTL() time.Duration {
	return time.Duration(c.ReplayCacheTTLSec) * time.Second
}

func (c *AppConfig) ReplayFetchTimeout() time.Duration {
	return time.Duration(c.ReplayFetchTimeoutSec) * time.Second
}

func policyInt(key string, floor int, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return fmt.Errorf("%s: want an integer >= %d, got %q", key, floor, v)
	}
	*dst = n
	return nil
}

func policyBool(key string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: want a boolean, got %q", key, v)
	}
	*dst = b
	return nil
}

func positiveInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// defaultWorkers mirrors the parser pool sizing: NumCPU clamped to [2, 4].
func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 4 {
		return 4
	}
	return n
}
