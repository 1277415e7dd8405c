package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// defaultRedisUser is the implicit user of password-only Redis deployments.
const defaultRedisUser = "default"

// RedisURL returns the connection URL for the Redis engine. An explicit URL
// wins; otherwise one is assembled from the discrete fields. A username of
// "default" is treated as password-only auth and omitted.
func RedisURL(cfg *RedisSection) (string, error) {
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return "", fmt.Errorf("store.redis.url: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return "", fmt.Errorf("store.redis.url: unsupported scheme %q", u.Scheme)
		}
		return cfg.URL, nil
	}

	if cfg.Host == "" {
		return "", errors.New("store.redis.host or store.redis.url is required for the redis engine")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultRedisPort
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("store.redis.port %d out of range", port)
	}
	if cfg.DB < 0 {
		return "", fmt.Errorf("store.redis.db %d must not be negative", cfg.DB)
	}

	u := url.URL{
		Scheme: "redis",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(cfg.DB),
	}
	if cfg.SSL {
		u.Scheme = "rediss"
	}

	user := cfg.Username
	if user == defaultRedisUser {
		user = ""
	}
	switch {
	case cfg.Password != "":
		u.User = url.UserPassword(user, cfg.Password)
	case user != "":
		u.User = url.User(user)
	}
	return u.String(), nil
}
