// Package server wires the facilitator's HTTP surface: the payment-gated
// proxy endpoint, diagnostics, and metrics.
package server

import (
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/payment"
	"github.com/vitwit/x402-facilitator/pricing"
	"github.com/vitwit/x402-facilitator/proxy"
	"github.com/vitwit/x402-facilitator/receipts"
	"github.com/vitwit/x402-facilitator/settlement"
	"github.com/vitwit/x402-facilitator/types"
)

// PaymentHeader is the inbound payment header name. Lookup through
// http.Header is case-insensitive.
const PaymentHeader = "X-Payment"

// ChallengeHeader mirrors the 402 challenge body in a response header.
const ChallengeHeader = "PAYMENT-REQUIRED"

type Server struct {
	cfg    config.Config
	engine *gin.Engine

	log logger.Logger
	rec metrics.Recorder

	prices    *pricing.Table
	challenge *payment.ChallengeBuilder
	ledger    clients.Ledger
	settler   *settlement.Engine
	store     *receipts.Store
	relay     *proxy.Relay

	payTo solana.PublicKey
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Server) { s.rec = r }
}

// WithReceiptStore replaces the default store, letting tests inject a
// fake clock.
func WithReceiptStore(store *receipts.Store) Option {
	return func(s *Server) { s.store = store }
}

// New builds the server from validated configuration and a ledger client.
func New(cfg config.Config, ledger clients.Ledger, opts ...Option) (*Server, error) {
	payTo, err := solana.PublicKeyFromBase58(cfg.PayTo)
	if err != nil {
		return nil, err
	}

	rules := make([]pricing.Rule, 0, len(cfg.PricedResources))
	for _, r := range cfg.PricedResources {
		rules = append(rules, pricing.Rule{
			Matcher:     r.Pattern,
			PriceUnits:  r.Price,
			Description: r.Description,
		})
	}

	s := &Server{
		cfg:       cfg,
		log:       logger.NoopLogger{},
		rec:       metrics.NoopRecorder{},
		prices:    pricing.NewTable(rules),
		challenge: payment.NewChallengeBuilder(cfg.Network, cfg.PayTo, cfg.MaxTimeoutSeconds),
		ledger:    ledger,
		payTo:     payTo,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = receipts.New(cfg.ReceiptTTL)
	}
	s.settler = settlement.NewEngine(ledger, cfg.Network, cfg.ConfirmTimeout, s.log, s.rec)
	s.relay = proxy.NewRelay(cfg.BackendURL, cfg.Network, cfg.ConfirmTimeout, s.log, s.rec)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.AllowedOrigins))
	s.engine = engine
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/supported", s.handleSupported)
	if s.cfg.EnableMetrics {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	s.engine.Any("/proxy/*resource", s.handleProxy)
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store exposes the receipt store for diagnostics and tests.
func (s *Server) Store() *receipts.Store {
	return s.store
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"network":    s.cfg.Network.String(),
		"recipient":  s.cfg.PayTo,
		"backendUrl": s.cfg.BackendURL,
	}

	// Best effort: the health check stays green when the node is slow.
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()
	if balance, err := s.ledger.Balance(ctx, s.payTo); err == nil {
		body["recipientBalance"] = balance
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSupported(c *gin.Context) {
	rules := s.prices.Rules()
	resources := make([]types.PaymentRequirements, 0, len(rules))
	for i := range rules {
		resources = append(resources, s.challenge.Requirements(&rules[i], s.resourceURL(c, "/proxy"+rules[i].Matcher)))
	}

	c.JSON(http.StatusOK, types.SupportedResponse{
		Kinds: []types.SupportedKind{
			{X402Version: types.X402Version, Scheme: types.SchemeExact, Network: s.cfg.Network.String()},
		},
		Resources: resources,
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", PaymentHeader},
		ExposeHeaders: []string{ChallengeHeader, proxy.HeaderPaymentResponse, proxy.HeaderPaymentSettled},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
