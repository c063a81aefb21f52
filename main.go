package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/camlink/camerad/cmd"
	"github.com/camlink/camerad/internal/auth"
	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/capture"
	"github.com/camlink/camerad/internal/config"
	"github.com/camlink/camerad/internal/events"
	"github.com/camlink/camerad/internal/files"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/mediamtx"
	"github.com/camlink/camerad/internal/orchestrator"
	"github.com/camlink/camerad/internal/rpc"
	"github.com/camlink/camerad/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camerad.toml"`

	// Server settings
	ServerHost     string `help:"WebSocket bind host" default:"0.0.0.0" toml:"server.host" env:"SERVER_HOST"`
	ServerPort     int    `help:"WebSocket port" short:"p" default:"8002" toml:"server.port" env:"SERVER_PORT"`
	WebsocketPath  string `help:"WebSocket endpoint path" default:"/ws" toml:"server.websocket_path" env:"WEBSOCKET_PATH"`
	MaxConnections int    `help:"Maximum concurrent WebSocket clients" default:"100" toml:"server.max_connections" env:"MAX_CONNECTIONS"`
	FilesPort      int    `help:"File/health HTTP port" default:"8003" toml:"server.files_port" env:"FILES_PORT"`

	// MediaMTX settings
	MediamtxHost           string  `help:"MediaMTX host" default:"127.0.0.1" toml:"mediamtx.host" env:"MEDIAMTX_HOST"`
	MediamtxApiPort        int     `help:"MediaMTX API port" default:"9997" toml:"mediamtx.api_port" env:"MEDIAMTX_API_PORT"`
	MediamtxRtspPort       int     `help:"MediaMTX RTSP port" default:"8554" toml:"mediamtx.rtsp_port" env:"MEDIAMTX_RTSP_PORT"`
	MediamtxWebrtcPort     int     `help:"MediaMTX WebRTC port" default:"8889" toml:"mediamtx.webrtc_port" env:"MEDIAMTX_WEBRTC_PORT"`
	MediamtxHlsPort        int     `help:"MediaMTX HLS port" default:"8888" toml:"mediamtx.hls_port" env:"MEDIAMTX_HLS_PORT"`
	RecordingsPath         string  `help:"Recordings directory" default:"/opt/camerad/recordings" toml:"mediamtx.recordings_path" env:"RECORDINGS_PATH"`
	SnapshotsPath          string  `help:"Snapshots directory" default:"/opt/camerad/snapshots" toml:"mediamtx.snapshots_path" env:"SNAPSHOTS_PATH"`
	HealthCheckInterval    float64 `help:"Health probe interval in seconds" default:"5" toml:"mediamtx.health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	HealthFailureThreshold int     `help:"Failures before the circuit opens" default:"3" toml:"mediamtx.health_failure_threshold" env:"HEALTH_FAILURE_THRESHOLD"`
	CircuitBreakerTimeout  float64 `help:"Circuit open window in seconds" default:"60" toml:"mediamtx.circuit_breaker_timeout" env:"CIRCUIT_BREAKER_TIMEOUT"`

	// Camera settings
	DeviceRange               string  `help:"Device number range, e.g. 0-9" default:"0-9" toml:"camera.device_range" env:"DEVICE_RANGE"`
	PollInterval              float64 `help:"Base poll interval in seconds" default:"0.1" toml:"camera.poll_interval" env:"POLL_INTERVAL"`
	DetectionTimeout          float64 `help:"Capability probe timeout in seconds" default:"2" toml:"camera.detection_timeout" env:"DETECTION_TIMEOUT"`
	EnableCapabilityDetection bool    `help:"Probe device capabilities" default:"true" toml:"camera.enable_capability_detection" env:"ENABLE_CAPABILITY_DETECTION"`

	// Security settings
	JwtSecret   string `help:"HMAC secret for access tokens" toml:"security.token_secret" env:"JWT_SECRET"`
	ApiKeysPath string `help:"API key store path" default:"/opt/camerad/api-keys.json" toml:"security.api_keys_path" env:"API_KEYS_PATH"`
	RateRpm     int    `help:"Requests per minute per client" default:"120" toml:"security.requests_per_minute" env:"RATE_RPM"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingMonitor  string `help:"Camera monitor logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingHealth   string `help:"Health supervisor logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingRpc      string `help:"RPC server logging level" default:"info" toml:"logging.rpc" env:"LOGGING_RPC"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingMediamtx string `help:"MediaMTX client logging level" default:"info" toml:"logging.mediamtx" env:"LOGGING_MEDIAMTX"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"monitor":  opts.LoggingMonitor,
			"health":   opts.LoggingHealth,
			"rpc":      opts.LoggingRpc,
			"capture":  opts.LoggingCapture,
			"mediamtx": opts.LoggingMediamtx,
		} {
			loggingConfig.Modules[module] = level
		}
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")
		logger.Info("Starting camerad", "version", version.String())

		mtxCfg := mediamtx.DefaultConfig()
		mtxCfg.Host = opts.MediamtxHost
		mtxCfg.APIPort = opts.MediamtxApiPort
		mtxCfg.RTSPPort = opts.MediamtxRtspPort
		mtxCfg.WebRTCPort = opts.MediamtxWebrtcPort
		mtxCfg.HLSPort = opts.MediamtxHlsPort
		mtxCfg.RecordingsPath = opts.RecordingsPath
		mtxCfg.SnapshotsPath = opts.SnapshotsPath
		mtxCfg.HealthCheckInterval = opts.HealthCheckInterval
		mtxCfg.HealthFailureThreshold = opts.HealthFailureThreshold
		mtxCfg.CircuitBreakerTimeout = opts.CircuitBreakerTimeout

		deviceRange, err := camera.ParseDeviceRange(opts.DeviceRange)
		if err != nil {
			logger.Error("Invalid device range", "range", opts.DeviceRange, "error", err)
			os.Exit(1)
		}
		monCfg := camera.DefaultMonitorConfig()
		monCfg.DeviceRange = deviceRange
		monCfg.PollInterval = opts.PollInterval
		monCfg.DetectionTimeout = opts.DetectionTimeout
		monCfg.EnableCapabilityDetection = opts.EnableCapabilityDetection

		if opts.JwtSecret == "" {
			logger.Error("Token secret is required; set security.token_secret or CAMERAD_JWT_SECRET")
			os.Exit(1)
		}
		tokens, err := auth.NewTokenManager(opts.JwtSecret)
		if err != nil {
			logger.Error("Failed to initialize token auth", "error", err)
			os.Exit(1)
		}
		keys, err := auth.OpenKeyStore(opts.ApiKeysPath)
		if err != nil {
			logger.Error("Failed to open API key store", "path", opts.ApiKeysPath, "error", err)
			os.Exit(1)
		}
		authenticator := auth.NewAuthenticator(tokens, keys)

		bus := events.New()
		client := mediamtx.NewClient(mtxCfg)
		paths := mediamtx.NewPathManager(client)
		monitor := camera.NewMonitor(monCfg)
		health := mediamtx.NewHealthMonitor(client, bus)
		recorder := capture.NewRecordingManager(client, mtxCfg, bus)
		snapshots := capture.NewSnapshotManager(mtxCfg, bus)

		rpcCfg := rpc.ServerConfig{
			Host:           opts.ServerHost,
			Port:           opts.ServerPort,
			WebSocketPath:  opts.WebsocketPath,
			MaxConnections: opts.MaxConnections,
			RequestsPerMin: opts.RateRpm,
		}
		rpcServer := rpc.NewServer(rpcCfg, rpc.Deps{
			Devices:    monitor,
			Streams:    client,
			Health:     health,
			Snapshots:  snapshots,
			Recorder:   recorder,
			Recordings: capture.NewArtifactStore(mtxCfg.RecordingsPath),
			SnapStore:  capture.NewArtifactStore(mtxCfg.SnapshotsPath),
			Auth:       authenticator,
			MediaMTX:   mtxCfg,
			Version:    version.String(),
			StartTime:  time.Now(),
		})

		orch := orchestrator.New(client, paths, monitor, health, rpcServer)

		filesCfg := files.DefaultConfig()
		filesCfg.Host = opts.ServerHost
		filesCfg.Port = opts.FilesPort
		fileServer := files.NewServer(filesCfg,
			capture.NewArtifactStore(mtxCfg.RecordingsPath),
			capture.NewArtifactStore(mtxCfg.SnapshotsPath),
			authenticator, health.IsHealthy)

		// Recording events feed client notifications through the bus.
		bus.Subscribe(func(ev events.RecordingStatusEvent) {
			rpcServer.BroadcastRecordingStatus(ev.DevicePath, ev.Status, ev.Filename, ev.Duration)
		})

		watcher := config.NewConfigWatcher(opts.Config, config.LoadReloadableConfig, logger)
		watcher.OnReload(func(cfg config.ReloadableConfig) {
			for module, level := range cfg.Logging.Modules {
				logging.SetModuleLevel(module, level)
			}
			monitor.SetBaseInterval(cfg.PollInterval)
			logger.Info("Configuration reloaded")
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if startErr := orch.Start(ctx); startErr != nil {
				logger.Error("Failed to start service", "error", startErr)
				os.Exit(1)
			}
			if startErr := fileServer.Start(ctx); startErr != nil {
				logger.Error("Failed to start file server", "error", startErr)
				orch.Stop()
				os.Exit(1)
			}
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher not started", "error", watchErr)
			}
			logger.Info("camerad ready",
				"ws_port", opts.ServerPort, "files_port", opts.FilesPort)
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_ = watcher.Stop()
			fileServer.Stop()
			orch.Stop()
			cancel()
		})
	})

	cli.Root().Use = "camerad"
	cli.Root().AddCommand(cmd.CreateTokenCmd())
	cli.Root().AddCommand(cmd.CreateAPIKeyCmd())

	cli.Run()
}
