// ABOUTME: Gateway orchestrator that wires storage, messaging, presence and delivery
// ABOUTME: Runs the HTTP/WebSocket server, the optional gRPC health server and the tailnet listener

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/dm-gateway/internal/auth"
	"github.com/2389/dm-gateway/internal/config"
	"github.com/2389/dm-gateway/internal/conversation"
	"github.com/2389/dm-gateway/internal/dedupe"
	"github.com/2389/dm-gateway/internal/delivery"
	"github.com/2389/dm-gateway/internal/presence"
	"github.com/2389/dm-gateway/internal/store"
)

// tailnetGRPCPort is the tailnet port for the health service when tailscale is enabled.
const tailnetGRPCPort = ":50051"

// Gateway owns every long-lived component of the direct-message server.
type Gateway struct {
	config   *config.Config
	store    store.Store
	verifier *auth.JWTVerifier
	service  *conversation.Service
	presence *presence.Registry[delivery.Conn]
	router   *delivery.Router
	validate *validator.Validate

	httpServer  *http.Server
	grpcServer  *grpc.Server // nil unless server.grpc_addr is set
	health      *health.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance in logs
	serverID string

	// dedupe drops repeated clientMessageId values per sender
	dedupe *dedupe.Cache

	// draining is set once shutdown begins; /health/ready reports 503 after that
	draining atomic.Bool
}

// initStore opens the configured SQLite database.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates the health-only gRPC server with the gateway's keepalive policy.
func createGRPCServer(healthSrv *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(server, healthSrv)
	return server
}

// New creates a Gateway from configuration. The store is opened immediately;
// listeners are not created until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	ledger := conversation.NewLedger(sqlStore, logger)
	service := conversation.NewService(sqlStore, sqlStore, ledger, conversation.Options{
		DefaultPageSize:  cfg.Chat.DefaultPageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
		MaxContentLength: cfg.Chat.MaxContentLength,
	}, logger)
	registry := presence.NewRegistry[delivery.Conn](logger)

	gw := &Gateway{
		config:   cfg,
		store:    sqlStore,
		verifier: verifier,
		service:  service,
		presence: registry,
		router:   delivery.NewRouter(service, registry, logger),
		validate: newValidator(),
		health:   health.NewServer(),
		logger:   logger,
		serverID: generateServerID(),
		dedupe:   dedupe.New(cfg.Chat.DedupeTTL, cfg.Chat.DedupeMaxEntries),
	}

	if cfg.Server.GRPCAddr != "" {
		gw.grpcServer = createGRPCServer(gw.health)
	}

	gw.httpServer = &http.Server{
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("gateway initialized",
		"server_id", gw.serverID,
		"database", cfg.Database.Path,
		"driver", cfg.Database.Driver,
		"grpc_health", gw.grpcServer != nil,
		"metrics", cfg.Metrics.Enabled,
	)
	return gw, nil
}

// Handler returns the HTTP handler with every route registered and the
// request metrics middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("GET /ws", g.handleSocket)

	requireAuth := auth.HTTPAuthMiddleware(g.verifier, g.logger)
	mux.Handle("GET /api/chat/conversations", requireAuth(http.HandlerFunc(g.handleListConversations)))
	mux.Handle("GET /api/chat/messages/{userId}", requireAuth(http.HandlerFunc(g.handleHistory)))
	mux.Handle("POST /api/chat/messages", requireAuth(http.HandlerFunc(g.handleSendMessage)))
	mux.Handle("GET /api/chat/unread-count", requireAuth(http.HandlerFunc(g.handleUnreadCount)))

	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, promhttp.Handler())
		g.logger.Info("metrics endpoint enabled", "path", g.config.Metrics.Path)
	}

	return metricsMiddleware(mux)
}

// setupTCPListeners opens the HTTP listener and, when configured, the gRPC one.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses flags a TCP address that the tailnet listener will shadow.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners picks tailnet or plain TCP listeners.
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the HTTP server and, if present, the gRPC server in
// goroutines, returning their error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return errCh
}

// waitForShutdownSignal blocks until ctx ends or a server reports a failure.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors logs a second server failure if one is already queued.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("further server failure", "error", additionalErr)
	default:
	}
}

// Run serves until ctx is canceled or a server fails, then shuts down.
// A canceled ctx yields nil; a server failure is returned as is.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown under its own five second budget, since
// Run's context is already done by then.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir defaults to ~/.local/share/dm-gateway/tailscale.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dm-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey prefers the configured key over TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens on :80 for HTTP and,
// when gRPC health is enabled, on :50051.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = g.tsnetServer.Listen("tcp", tailnetGRPCPort)
		if err != nil {
			_ = httpLn.Close()
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus reports the node's DNS name and addresses once it is up.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	if status == nil || status.Self == nil {
		g.logger.Info("tailscale node up", "hostname", hostname)
		return
	}
	g.logger.Info("tailscale node up",
		"hostname", hostname,
		"dns_name", strings.TrimSuffix(status.Self.DNSName, "."),
		"ips", status.TailscaleIPs,
	)
}

// shutdownGRPCServer waits for in-flight health checks unless ctx expires first.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError labels a non-nil err and adds it to errs.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers and closes live sockets before releasing the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("gateway stopping", "server_id", g.serverID)
	g.draining.Store(true)
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked WebSocket connections are not tracked by the HTTP server.
	g.closeSockets(ctx)

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if g.dedupe != nil {
		g.dedupe.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// closeSockets tells every connected client the server is going away and
// waits for the close handshakes, or for ctx to expire. Their handlers then
// unregister from presence on their own.
func (g *Gateway) closeSockets(ctx context.Context) {
	var wg sync.WaitGroup
	for _, userID := range g.presence.Users() {
		conn, ok := g.presence.HandleFor(userID)
		if !ok {
			continue
		}
		if sc, isSocket := conn.(*socketConn); isSocket {
			wg.Go(func() { sc.close(websocket.StatusGoingAway, "server shutting down") })
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("socket close handshakes still pending at shutdown deadline")
	}
}

// handleHealth is the liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK until shutdown begins.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d users online)", g.presence.Len())
}

// generateServerID tags this process in logs.
func generateServerID() string {
	return "dm-gateway-" + uuid.NewString()[:8]
}
