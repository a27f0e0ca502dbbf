package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"cync-go-home/internal/bridge"
	"cync-go-home/internal/cloud"
	"cync-go-home/internal/restapi"
	"cync-go-home/internal/store"
	"cync-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Cync struct {
		UserID       uint32 `yaml:"user_id"`
		Authorize    string `yaml:"authorize"`
		RefreshToken string `yaml:"refresh_token"`
		Server       string `yaml:"server"`
		APIBaseURL   string `yaml:"api_base_url"`
	} `yaml:"cync"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.Cync.UserID == 0 {
		return fmt.Errorf("cync.user_id is required (run `cync-home login` to obtain credentials)")
	}
	if c.Cync.Authorize == "" {
		return fmt.Errorf("cync.authorize is required")
	}
	if len(c.Cync.Authorize) > 255 {
		return fmt.Errorf("cync.authorize must be at most 255 bytes")
	}
	return nil
}

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "login" {
		if err := runLogin(); err != nil {
			bootLogger.Error("login", "err", err)
			os.Exit(1)
		}
		return
	}

	cfgPath := "config.yaml"
	if len(args) > 0 {
		cfgPath = args[0]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("cync-home starting", "version", version)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Fetch the device inventory over REST, falling back to the cached copy
	// when the cloud is unreachable.
	api := restapi.NewClient(cfg.Cync.APIBaseURL, logger)
	homes, err := fetchInventory(api, cfg, db, logger)
	if err != nil {
		logger.Warn("inventory fetch failed, using cached inventory", "err", err)
		homes, err = cachedInventory(db)
		if err != nil {
			logger.Error("no usable inventory", "err", err)
			os.Exit(1)
		}
	}

	session := cloud.NewSession(cloud.Config{
		Addr:      cfg.Cync.Server,
		UserID:    cfg.Cync.UserID,
		Authorize: cfg.Cync.Authorize,
	}, logger)
	events := bridge.NewEventBus(logger)
	core := bridge.New(session, events, logger)

	// Host adapters attach before import so they see capability exposure.
	mqtt := initMQTT(core, cfg, logger)

	core.Start()
	if _, err := core.ImportInventory(homes); err != nil {
		logger.Error("import inventory", "err", err)
		core.Stop()
		os.Exit(1)
	}

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version), web.WithStore(db))
	webServer := web.NewServer(core, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	auto := initAutomation(core, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	core.Stop()

	logger.Info("goodbye")
}

// fetchInventory pulls homes and bulbs over REST and refreshes the cache.
func fetchInventory(api *restapi.Client, cfg *Config, db store.Store, logger *slog.Logger) ([]bridge.Home, error) {
	if cfg.Cync.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	token, err := api.RefreshAccessToken(ctx, cfg.Cync.RefreshToken)
	if err != nil {
		return nil, err
	}

	homeInfos, err := api.Homes(ctx, cfg.Cync.UserID, token)
	if err != nil {
		return nil, err
	}

	var homes []bridge.Home
	for _, hi := range homeInfos {
		devices, err := api.HomeDevices(ctx, hi, token)
		if err != nil {
			return nil, err
		}
		home := bridge.Home{ID: hi.ID, Name: hi.Name}
		for _, d := range devices {
			home.Bulbs = append(home.Bulbs, bridge.BulbRecord{
				DeviceID:    d.DeviceID,
				SwitchID:    d.SwitchID,
				DeviceType:  d.DeviceType,
				DisplayName: d.DisplayName,
			})
			if err := db.SaveBulb(&store.Bulb{
				DeviceID:    d.DeviceID,
				SwitchID:    d.SwitchID,
				HomeID:      hi.ID,
				DeviceType:  d.DeviceType,
				DisplayName: d.DisplayName,
				LastSeen:    time.Now(),
			}); err != nil {
				logger.Warn("cache bulb", "device", d.DeviceID, "err", err)
			}
		}
		if err := db.SaveHome(&store.Home{
			ID:         hi.ID,
			ProductID:  hi.ProductID,
			Name:       hi.Name,
			ImportedAt: time.Now(),
		}); err != nil {
			logger.Warn("cache home", "home", hi.ID, "err", err)
		}
		homes = append(homes, home)
	}
	logger.Info("inventory fetched", "homes", len(homes))
	return homes, nil
}

// cachedInventory rebuilds the home list from the store.
func cachedInventory(db store.Store) ([]bridge.Home, error) {
	cachedHomes, err := db.ListHomes()
	if err != nil {
		return nil, err
	}
	bulbs, err := db.ListBulbs()
	if err != nil {
		return nil, err
	}
	if len(cachedHomes) == 0 || len(bulbs) == 0 {
		return nil, fmt.Errorf("inventory cache is empty")
	}

	byHome := make(map[uint32]*bridge.Home, len(cachedHomes))
	homes := make([]bridge.Home, 0, len(cachedHomes))
	for _, h := range cachedHomes {
		homes = append(homes, bridge.Home{ID: h.ID, Name: h.Name})
		byHome[h.ID] = &homes[len(homes)-1]
	}
	for _, b := range bulbs {
		home, ok := byHome[b.HomeID]
		if !ok {
			continue
		}
		home.Bulbs = append(home.Bulbs, bridge.BulbRecord{
			DeviceID:    b.DeviceID,
			SwitchID:    b.SwitchID,
			DeviceType:  b.DeviceType,
			DisplayName: b.DisplayName,
		})
	}
	return homes, nil
}

// runLogin walks the two-factor flow on the terminal and prints the config
// block to paste into config.yaml.
func runLogin() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	api := restapi.NewClient("", logger)
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Cync account email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := api.RequestVerifyCode(ctx, email); err != nil {
		return err
	}
	fmt.Print("Verification code (check your email): ")
	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)

	creds, err := api.Login(ctx, email, password, code)
	if err != nil {
		return err
	}

	fmt.Println("\nAdd this to config.yaml:")
	fmt.Println("cync:")
	fmt.Printf("  user_id: %d\n", creds.UserID)
	fmt.Printf("  authorize: %q\n", creds.Authorize)
	fmt.Printf("  refresh_token: %q\n", creds.RefreshToken)
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "cync-home.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "cync"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
