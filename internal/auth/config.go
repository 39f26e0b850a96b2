package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	DefaultCookieName = "sql_chat_auth"
	DefaultExpiryDays = 30
)

type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	// bcrypt hash
	Password string `yaml:"password"`
}

type CookieConfig struct {
	Name       string  `yaml:"name"`
	Key        string  `yaml:"key"`
	ExpiryDays float64 `yaml:"expiry_days"`
}

// Config mirrors the credentials file:
//
//	credentials:
//	  usernames:
//	    jsmith:
//	      name: John Smith
//	      email: jsmith@example.com
//	      password: $2a$12$...
//	cookie:
//	  name: sql_chat_auth
//	  key: some_signature_key
//	  expiry_days: 30
//	preauthorized:
//	  emails:
//	    - melsby@example.com
type Config struct {
	Credentials struct {
		Usernames map[string]User `yaml:"usernames"`
	} `yaml:"credentials"`
	Cookie CookieConfig `yaml:"cookie"`
	// Accepted for compatibility with existing credential files; there is
	// no self registration.
	Preauthorized struct {
		Emails []string `yaml:"emails"`
	} `yaml:"preauthorized"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading auth config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing auth config: %w", err)
	}

	if len(cfg.Credentials.Usernames) == 0 {
		return nil, errors.New("auth config has no users")
	}
	if cfg.Cookie.Key == "" {
		return nil, errors.New("auth config is missing cookie.key")
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = DefaultCookieName
	}
	if cfg.Cookie.ExpiryDays <= 0 {
		cfg.Cookie.ExpiryDays = DefaultExpiryDays
	}

	users := make(map[string]User, len(cfg.Credentials.Usernames))
	for username, user := range cfg.Credentials.Usernames {
		if user.Password == "" {
			return nil, fmt.Errorf("user %q has no password", username)
		}
		users[strings.ToLower(username)] = user
	}
	cfg.Credentials.Usernames = users

	return &cfg, nil
}
