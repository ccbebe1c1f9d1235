// Package config loads facilitator configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vitwit/x402-facilitator/types"
)

// PricedResource is one entry of the price table: requests whose path
// matches Pattern cost Price lamports.
type PricedResource struct {
	Pattern     string `json:"pattern"`
	Price       uint64 `json:"price"`
	Description string `json:"description"`
}

type Config struct {
	HTTPAddr string

	SolanaRPCURL string
	Network      types.Network

	// PayTo is the recipient address every qualifying transfer must target.
	// The facilitator never holds the corresponding private key.
	PayTo string

	BackendURL     string
	AllowedOrigins []string

	PricedResources []PricedResource

	ReceiptTTL        time.Duration
	ConfirmTimeout    time.Duration
	ConfirmLevel      string
	MaxTimeoutSeconds int

	LogLevel      string
	EnableMetrics bool
}

// DefaultPriceTable is used when PRICED_RESOURCES is not set.
var DefaultPriceTable = []PricedResource{
	{Pattern: "/api/report/*", Price: 2_000_000, Description: "AI portfolio report"},
	{Pattern: "/api/portfolio/*", Price: 1_000_000, Description: "Portfolio snapshot"},
}

func FromEnv() Config {
	cfg := Config{
		HTTPAddr:          envDefault("HTTP_ADDR", ":8402"),
		SolanaRPCURL:      envDefault("SOLANA_RPC_URL", rpc.DevNet_RPC),
		Network:           types.Network(envDefault("NETWORK", types.NetworkSolanaDevnet.String())),
		PayTo:             os.Getenv("PAY_TO_ADDRESS"),
		BackendURL:        os.Getenv("BACKEND_URL"),
		AllowedOrigins:    splitList(envDefault("ALLOWED_ORIGINS", "*")),
		PricedResources:   priceTableFromEnv(),
		ReceiptTTL:        time.Duration(envIntDefault("RECEIPT_TTL_SECONDS", 300)) * time.Second,
		ConfirmTimeout:    time.Duration(envIntDefault("CONFIRM_TIMEOUT_SECONDS", 60)) * time.Second,
		ConfirmLevel:      envDefault("CONFIRM_LEVEL", "finalized"),
		MaxTimeoutSeconds: envIntDefault("MAX_TIMEOUT_SECONDS", 60),
		LogLevel:          envDefault("LOG_LEVEL", "info"),
		EnableMetrics:     envBoolDefault("ENABLE_METRICS", true),
	}
	return cfg
}

// Validate checks the fields that have no usable default.
func (c Config) Validate() error {
	if c.PayTo == "" {
		return fmt.Errorf("PAY_TO_ADDRESS is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.PayTo); err != nil {
		return fmt.Errorf("PAY_TO_ADDRESS is not a valid base58 public key: %w", err)
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if !c.Network.IsSolana() {
		return fmt.Errorf("unsupported network %q", c.Network)
	}
	if c.ConfirmLevel != "finalized" && c.ConfirmLevel != "confirmed" {
		return fmt.Errorf("CONFIRM_LEVEL must be finalized or confirmed, got %q", c.ConfirmLevel)
	}
	for _, r := range c.PricedResources {
		if r.Pattern == "" || r.Price == 0 {
			return fmt.Errorf("priced resource %+v needs a pattern and a non-zero price", r)
		}
	}
	return nil
}

func priceTableFromEnv() []PricedResource {
	raw := os.Getenv("PRICED_RESOURCES")
	if raw == "" {
		return DefaultPriceTable
	}
	var table []PricedResource
	if err := json.Unmarshal([]byte(raw), &table); err != nil || len(table) == 0 {
		return DefaultPriceTable
	}
	return table
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}
