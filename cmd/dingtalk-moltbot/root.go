// ABOUTME: Root command for the connector binary
// ABOUTME: Merges config file and flags, then runs the connector until signalled

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.mau.fi/util/ptr"

	connector "github.com/moltbot/dingtalk-connector"
)

const banner = `
    ╭───────────────────────────────────╮
    │                                   │
    │   ┳┓┳┳┓┏┓  ┏┓┏┓┳┓┳┓┏┓┏┓┏┳┓┏┓┳┓   │
    │   ┃┃┃┃┃┃┓  ┃ ┃┃┃┃┃┃┣ ┃  ┃ ┃┃┣┫   │
    │   ┻┛┻┛┗┗┛  ┗┛┗┛┛┗┛┗┗┛┗┛ ┻ ┗┛┛┗   │
    │                                   │
    │     dingtalk-moltbot connector    │
    │                                   │
    ╰───────────────────────────────────╯
`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dingtalk-moltbot",
		Short: "Bridge DingTalk chatbot messages to a Moltbot gateway",
		Long: `dingtalk-moltbot connects a DingTalk chatbot to a Moltbot gateway.

Inbound messages arrive over DingTalk's stream mode, get forwarded to the
gateway's chat completions API, and the streamed response is rendered into
an AI card that grows in place. Conversations without card support fall
back to a single text reply.

Configuration comes from flags, a TOML config file, and environment
variables, in that order of precedence. Only the DingTalk credentials are
required:

  DINGTALK_CLIENT_ID      app key
  DINGTALK_CLIENT_SECRET  app secret`,
		SilenceUsage: true,
		RunE:         runConnector,
	}

	cmd.Flags().String("config", "", "Config file path (default: "+defaultConfigPath()+")")
	cmd.Flags().String("gateway-url", "", "Moltbot gateway base URL")
	cmd.Flags().String("model", "", "Model name sent with each request")
	cmd.Flags().String("system-prompt", "", "Extra system prompt for every conversation")
	cmd.Flags().String("gateway-token", "", "Bearer token for the gateway")
	cmd.Flags().Bool("no-media-upload", false, "Disable the image upload guidance prompt")
	cmd.Flags().Duration("timeout", 0, "Streaming request timeout")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func runConnector(cmd *cobra.Command, args []string) error {
	color.New(color.FgCyan).Print(banner)

	file, err := loadConfigFileFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := setupLogger(loggingSettings(cmd.Flags(), file))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	overrides := file.Overrides()
	applyFlagOverrides(&overrides, cmd.Flags())

	conn, err := connector.New(overrides, logger)
	if err != nil {
		return err
	}

	cfg := conn.Config()
	green := color.New(color.FgGreen)
	if file != nil {
		green.Print("    ▶ ")
		fmt.Printf("Config:  %s\n", file.path)
	}
	green.Print("    ▶ ")
	fmt.Printf("Gateway: %s\n", cfg.GatewayURL)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.Model)
	if cfg.EnableMediaUpload {
		green.Print("    ▶ ")
		fmt.Println("Uploads: image guidance enabled")
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return conn.Run(ctx)
}

// loadConfigFileFromFlags loads the file named by --config, or the default
// path when the flag is unset. Only an explicitly named file is required to
// exist.
func loadConfigFileFromFlags(flags *pflag.FlagSet) (*configFile, error) {
	path, _ := flags.GetString("config")
	if path != "" {
		return loadConfigFile(path, true)
	}
	return loadConfigFile(defaultConfigPath(), false)
}

// applyFlagOverrides copies explicitly set flags into o, so flags beat the
// config file and the environment. A flag given its zero value still counts
// as set.
func applyFlagOverrides(o *connector.Overrides, flags *pflag.FlagSet) {
	if flags.Changed("gateway-url") {
		v, _ := flags.GetString("gateway-url")
		o.GatewayURL = ptr.Ptr(v)
	}
	if flags.Changed("model") {
		v, _ := flags.GetString("model")
		o.Model = ptr.Ptr(v)
	}
	if flags.Changed("system-prompt") {
		v, _ := flags.GetString("system-prompt")
		o.SystemPrompt = ptr.Ptr(v)
	}
	if flags.Changed("gateway-token") {
		v, _ := flags.GetString("gateway-token")
		o.GatewayToken = ptr.Ptr(v)
	}
	if flags.Changed("no-media-upload") {
		v, _ := flags.GetBool("no-media-upload")
		o.EnableMediaUpload = ptr.Ptr(!v)
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		o.Timeout = ptr.Ptr(v)
	}
}

// loggingSettings resolves the log level and format, flags first, then the
// config file, then the defaults.
func loggingSettings(flags *pflag.FlagSet, file *configFile) (level, format string) {
	level, format = "info", "text"
	if file != nil {
		if file.config.Logging.Level != "" {
			level = file.config.Logging.Level
		}
		if file.config.Logging.Format != "" {
			format = file.config.Logging.Format
		}
	}
	if flags.Changed("log-level") {
		level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		format, _ = flags.GetString("log-format")
	}
	return level, format
}

func setupLogger(level, format string) (*slog.Logger, error) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}
