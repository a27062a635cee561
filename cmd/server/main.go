// Package main is the entry point for the proxy: it wires every subsystem (credential
// pool, quota ledger, flow recorder, rate limiter, dispatcher, HTTP server) from the
// config document and on-disk credentials, then serves the six inbound routes until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/kiro-gateway/proxy/internal/config"
	"github.com/kiro-gateway/proxy/internal/credential"
	"github.com/kiro-gateway/proxy/internal/dispatcher"
	"github.com/kiro-gateway/proxy/internal/flow"
	"github.com/kiro-gateway/proxy/internal/history"
	"github.com/kiro-gateway/proxy/internal/httpclient"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/logging"
	"github.com/kiro-gateway/proxy/internal/pool"
	"github.com/kiro-gateway/proxy/internal/quota"
	"github.com/kiro-gateway/proxy/internal/ratelimit"
	"github.com/kiro-gateway/proxy/internal/registry"
	"github.com/kiro-gateway/proxy/internal/server"
	"github.com/kiro-gateway/proxy/internal/summarizer"
	"github.com/kiro-gateway/proxy/internal/upstream"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath  string
		addr        string
		logLevel    string
		maxRetries  int
		proxyTokens string
	)
	flag.StringVar(&configPath, "config", config.DefaultPath(), "path to config.json")
	flag.StringVar(&addr, "addr", ":8317", "listen address")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.IntVar(&maxRetries, "max-retries", dispatcher.DefaultMaxRetries, "dispatcher retry/failover budget")
	flag.StringVar(&proxyTokens, "proxy-tokens", os.Getenv("PROXY_TOKENS"), "comma-separated list of accepted inbound proxy tokens")
	flag.Parse()

	logging.InitGlobalLogger(logLevel, logging.DefaultFileRotationConfig(filepath.Join(filepath.Dir(configPath), "logs", "proxy.log")))
	log.Infof("kiro-gateway proxy %s (%s) starting", Version, Commit)

	store := config.NewStore(configPath)
	if err := store.Load(); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	doc := store.Get()

	ledger := quota.NewLedger(0)
	credPool := pool.New(ledger)
	credStore := credential.NewStore()
	for _, acc := range doc.Accounts {
		if !acc.Enabled {
			continue
		}
		token, err := credStore.Load(acc.TokenPath)
		if err != nil {
			log.WithError(err).WithField("account", acc.ID).Warn("skipping account: failed to load token document")
			continue
		}
		credPool.Add(credential.New(acc.ID, acc.Name, acc.TokenPath, token))
	}
	if len(credPool.All()) == 0 {
		log.Warn("no enabled accounts loaded; every request will fail until accounts are configured")
	}

	clients := httpclient.New()
	clients.Warmup()
	defer clients.CloseAll()

	refresher := credential.NewRefresher(clients.Short(), credStore)
	upstreamClient := &upstream.Client{HTTP: clients.API()}

	customModels := map[string]string{}
	reg := registry.New()
	for id, m := range doc.CustomModels {
		customModels[id] = m.UpstreamModelID
		reg.AddCustom(registry.Entry{
			ID: id, DisplayName: m.DisplayName, UpstreamModelID: m.UpstreamModelID,
			ContextWindow: m.ContextWindow, OwnedBy: "custom",
		})
	}
	models := kiromodel.NewModelMapper(customModels)

	compactor := history.NewCompactor(store.HistoryConfig(), summarizer.New(clients.Short()))
	limiter := ratelimit.New(store.RateLimitConfig())
	recorder := flow.NewRecorder(1000)

	d := dispatcher.New(credPool, ledger, limiter, upstreamClient, refresher, compactor, models, recorder, maxRetries)

	var tokens []string
	if proxyTokens != "" {
		for _, t := range strings.Split(proxyTokens, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
	}

	srv := server.New(d, models, reg, tokens)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("listening on %s", addr)
	if err := srv.Run(ctx, addr); err != nil {
		fmt.Fprintln(os.Stderr, "server stopped:", err)
		os.Exit(1)
	}
}
