package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type AppConfig struct {
	k *koanf.Koanf
}

func NewAppConfig() *AppConfig {
	c := &AppConfig{k: koanf.New(".")}

	setDefaults(c.k)

	return c
}

func (c *AppConfig) Load(filename ...string) bool {
	loaded := false

	for _, name := range filename {
		if err := c.k.Load(file.Provider(name), yaml.Parser()); err != nil {
			slog.Info(fmt.Sprintf("error loading config: %s", err.Error()))
		} else {
			loaded = true
		}
	}

	return loaded
}

func (c *AppConfig) LoadEnv(prefix string) error {
	return c.k.Load(env.Provider(prefix, ".", func(s string) string {
		s1 := strings.ToLower(strings.TrimPrefix(s, prefix))
		for _, pr := range []string{"invite_", "smtp_", "ws_"} {
			if strings.HasPrefix(s1, pr) {
				return strings.Replace(s1, "_", ".", 1)
			}
		}

		return s1
	}), nil)
}

func (c *AppConfig) Bool(key string) bool {
	return c.k.Bool(key)
}

func (c *AppConfig) String(key string) string {
	return c.k.String(key)
}

func (c *AppConfig) Int(key string) int {
	return c.k.Int(key)
}

func (c *AppConfig) Set(key string, v any) error {
	return c.k.Set(key, v)
}

func (c *AppConfig) Address() string {
	return c.k.String("address")
}

func (c *AppConfig) DB() string {
	return c.k.String("db")
}

func (c *AppConfig) UsersFile() string {
	return c.k.String("users_file")
}

func (c *AppConfig) Secret() []byte {
	return []byte(c.k.String("secret"))
}

func (c *AppConfig) TokenMaxAge() time.Duration {
	return time.Duration(c.k.Int("token_max_age_min")) * time.Minute
}

func (c *AppConfig) InviteTTL() time.Duration {
	return time.Duration(c.k.Int("invite.ttl_days")) * time.Hour * 24
}

func (c *AppConfig) InviteSweep() time.Duration {
	return time.Duration(c.k.Int("invite.sweep_min")) * time.Minute
}

func (c *AppConfig) PingInterval() time.Duration {
	return time.Duration(c.k.Int("ws.ping_sec")) * time.Second
}

func (c *AppConfig) SMTPAddr() string {
	return c.k.String("smtp.addr")
}

func (c *AppConfig) SMTPFrom() string {
	return c.k.String("smtp.from")
}

func (c *AppConfig) BaseURL() string {
	return c.k.String("base_url")
}

func setDefaults(k *koanf.Koanf) {
	k.Set("address", ":8080")
	k.Set("db", "db.sqlite")
	k.Set("users_file", "users.yml")
	k.Set("base_url", "http://localhost:8080")

	k.Set("token_max_age_min", 60)

	k.Set("invite.ttl_days", 7)
	k.Set("invite.sweep_min", 60)

	k.Set("ws.ping_sec", 30)
}
