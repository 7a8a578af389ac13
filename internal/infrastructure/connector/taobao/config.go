package taobao

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/spf13/cast"
)

const (
	// ProductionGatewayURL is the production API endpoint
	ProductionGatewayURL = "https://eco.taobao.com/router/rest"
	// SandboxGatewayURL is the sandbox API endpoint
	SandboxGatewayURL = "https://gw.api.tbsandbox.com/router/rest"
)

// Credential keys read from a channel account
const (
	CredentialAppKey     = "app_key"
	CredentialAppSecret  = "app_secret"
	CredentialSessionKey = "session_key"
	CredentialCategoryID = "category_id"
)

var (
	ErrMissingAppKey     = errors.New("taobao: app key is required")
	ErrMissingAppSecret  = errors.New("taobao: app secret is required")
	ErrMissingSessionKey = errors.New("taobao: session key is required")
)

// Config is the process-wide gateway setting
type Config struct {
	GatewayURL string
	Timeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.GatewayURL == "" {
		c.GatewayURL = ProductionGatewayURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Credentials are the per-account open platform keys
type Credentials struct {
	AppKey     string
	AppSecret  string
	SessionKey string
	// CategoryID is the leaf category new items are published under
	CategoryID int64
}

// CredentialsFromAccount reads and validates the account's Taobao keys
func CredentialsFromAccount(account *channel.Account) (*Credentials, error) {
	creds := &Credentials{
		AppKey:     account.Credential(CredentialAppKey),
		AppSecret:  account.Credential(CredentialAppSecret),
		SessionKey: account.Credential(CredentialSessionKey),
		CategoryID: cast.ToInt64(account.Credential(CredentialCategoryID)),
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Validate checks that every key needed for signing is present
func (c *Credentials) Validate() error {
	if c.AppKey == "" {
		return ErrMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrMissingAppSecret
	}
	if c.SessionKey == "" {
		return ErrMissingSessionKey
	}
	return nil
}

// Sign computes the request signature.
// Taobao requires MD5(secret + k1v1k2v2... + secret), upper-cased hex, with keys sorted.
func (c *Credentials) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(c.AppSecret)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}
	builder.WriteString(c.AppSecret)

	hash := md5.Sum([]byte(builder.String()))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}
