// Package cli builds the cobra command tree for the faultline proxy:
// the `serve` command that runs the proxy itself, an interactive
// `--wizard` prompt path for missing destination settings, and a
// `config validate` command for checking a YAML policy file without
// binding a listener.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"faultline/config"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan, color.Bold)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

// ServeOptions mirrors the CLI table in SPEC_FULL.md §6 plus the
// --wizard and --config extensions.
type ServeOptions struct {
	params config.Params
	cfgFile string
	wizard  bool
}

// NewRootCommand builds the full `faultline` command tree. run is
// invoked with the validated Config once `serve` has parsed and
// validated its flags; it is injected so this package never imports
// the supervisor (which would make cli depend on net/listener
// concerns it has no business knowing about).
func NewRootCommand(run func(*config.Config) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "faultline",
		Short: "A transparent TCP proxy for fault injection testing",
		Long: `faultline accepts client connections on a local address, dials a
fixed destination, and forwards bytes bidirectionally while optionally
injecting added latency, chunk loss and bandwidth throttling.`,
	}

	root.AddCommand(newServeCommand(run), newConfigCommand())
	return root
}

func newServeCommand(run func(*config.Config) error) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP fault-injection proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			PrintBanner()

			if opts.cfgFile != "" {
				overlay, err := config.LoadFile(opts.cfgFile)
				if err != nil {
					errorColor.Fprintf(os.Stderr, "failed to load %s: %v\n", opts.cfgFile, err)
					return err
				}
				config.ApplyFileOverlay(&opts.params, overlay)
				// Write explicitly set flags back on top of the file values.
				cmd.Flags().Visit(func(f *pflag.Flag) {
					_ = f.Value.Set(f.Value.String())
				})
				if cmd.Flags().Changed("packet-loss-burst-size") {
					opts.params.PacketLossBurstSize, _ = cmd.Flags().GetUint32("packet-loss-burst-size")
				}
			}

			if opts.wizard || opts.params.DestIP == "" {
				runWizard(&opts.params)
			}

			cfg, err := config.Build(opts.params)
			if err != nil {
				errorColor.Fprintf(os.Stderr, "configuration error: %v\n", err)
				return err
			}

			printEffectiveConfig(cfg)
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.params.IP, "ip", "i", envOr("BIND_IP", "127.0.0.1"), "listen address")
	flags.Uint16VarP(&opts.params.Port, "port", "p", envOrUint16("BIND_PORT", 8080), "listen port")
	flags.StringVarP(&opts.params.DestIP, "dest-ip", "d", envOr("DEST_IP", ""), "destination host")
	flags.Uint16Var(&opts.params.DestPort, "dest-port", envOrUint16("DEST_PORT", 0), "destination port")

	flags.BoolVar(&opts.params.LatencyEnabled, "latency-enabled", false, "enable added latency")
	flags.Uint64Var(&opts.params.LatencyFixedMS, "latency-fixed-ms", 0, "fixed added latency, in milliseconds")
	flags.StringVar(&opts.params.LatencyRandomRange, "latency-random-ms", "", "additional random latency range, \"min-max\"")
	flags.Float64Var(&opts.params.LatencyProbability, "latency-probability", 1.0, "probability of applying latency to a given chunk")

	flags.BoolVar(&opts.params.PacketLossEnabled, "packet-loss-enabled", false, "enable chunk loss")
	flags.Float64Var(&opts.params.PacketLossProbability, "packet-loss-probability", 0.0, "probability of dropping a given chunk")
	var burstSize uint32
	flags.Uint32Var(&burstSize, "packet-loss-burst-size", 0, "number of consecutive chunks dropped once a burst starts (0 = no burst mode)")
	flags.Float64Var(&opts.params.PacketLossBurstProbability, "packet-loss-burst-probability", 0.0, "probability of entering burst mode on a given chunk")

	flags.BoolVar(&opts.params.BandwidthEnabled, "bandwidth-enabled", false, "enable bandwidth throttling")
	flags.StringVar(&opts.params.BandwidthLimit, "bandwidth-limit", "0", "bandwidth limit: bare number, or suffixed bps/kbps/mbps (0 = unlimited)")
	flags.Uint64Var(&opts.params.BandwidthBurstSize, "bandwidth-burst-size", 8192, "token bucket capacity, in bytes")

	flags.StringVar(&opts.cfgFile, "config", "", "optional YAML policy file; explicit flags override its values")
	flags.BoolVar(&opts.wizard, "wizard", false, "prompt interactively for any missing settings")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		opts.params.PacketLossBurstSize = burstSize
		return nil
	}

	return cmd
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate policy configuration",
	}

	var cfgFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML policy file without starting the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return fmt.Errorf("--config is required")
			}
			overlay, err := config.LoadFile(cfgFile)
			if err != nil {
				errorColor.Fprintf(os.Stderr, "%v\n", err)
				return err
			}
			var params config.Params
			config.ApplyFileOverlay(&params, overlay)

			cfg, err := config.Build(params)
			if err != nil {
				errorColor.Fprintf(os.Stderr, "%v\n", err)
				return err
			}
			successColor.Println("configuration is valid")
			printEffectiveConfig(cfg)
			return nil
		},
	}
	validateCmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML policy file")
	configCmd.AddCommand(validateCmd)
	return configCmd
}

// runWizard prompts for any destination settings not already supplied
// via flags or a config file, using the teacher's interactive rule
// creation idiom (cli/commands.go's AlecAivazis/survey prompts).
func runWizard(p *config.Params) {
	headerColor.Println("\nfaultline needs a destination to forward to...")

	if p.DestIP == "" {
		destPrompt := &survey.Input{Message: "Destination host:", Default: "127.0.0.1"}
		survey.AskOne(destPrompt, &p.DestIP, survey.WithValidator(survey.Required))
	}

	if p.DestPort == 0 {
		portStr := ""
		portPrompt := &survey.Input{Message: "Destination port:"}
		survey.AskOne(portPrompt, &portStr, survey.WithValidator(survey.Required))
		if port, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			p.DestPort = uint16(port)
		}
	}

	enableFaults := false
	confirmPrompt := &survey.Confirm{Message: "Configure fault injection now?", Default: false}
	survey.AskOne(confirmPrompt, &enableFaults)
	if !enableFaults {
		return
	}

	latencyPrompt := &survey.Confirm{Message: "Enable added latency?", Default: false}
	survey.AskOne(latencyPrompt, &p.LatencyEnabled)
	if p.LatencyEnabled {
		msStr := "0"
		survey.AskOne(&survey.Input{Message: "Fixed latency (ms):", Default: "100"}, &msStr)
		if ms, err := strconv.ParseUint(msStr, 10, 64); err == nil {
			p.LatencyFixedMS = ms
		}
		p.LatencyProbability = 1.0
	}

	lossPrompt := &survey.Confirm{Message: "Enable packet loss?", Default: false}
	survey.AskOne(lossPrompt, &p.PacketLossEnabled)
	if p.PacketLossEnabled {
		probStr := "0"
		survey.AskOne(&survey.Input{Message: "Drop probability (0-1):", Default: "0.05"}, &probStr)
		if prob, err := strconv.ParseFloat(probStr, 64); err == nil {
			p.PacketLossProbability = prob
		}
	}

	bwPrompt := &survey.Confirm{Message: "Enable bandwidth throttling?", Default: false}
	survey.AskOne(bwPrompt, &p.BandwidthEnabled)
	if p.BandwidthEnabled {
		limitStr := "0"
		survey.AskOne(&survey.Input{Message: "Bandwidth limit (e.g. 64kbps):", Default: "64kbps"}, &limitStr)
		p.BandwidthLimit = limitStr
	}
}

// printEffectiveConfig renders the validated policy set as a table,
// in the teacher's tablewriter idiom (cli/commands.go's listRules).
func printEffectiveConfig(cfg *config.Config) {
	infoColor.Println("\nEffective configuration:")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Setting", "Value")

	table.Append("listen", cfg.Listen.BindAddress())
	table.Append("destination", cfg.Listen.DestAddress())
	table.Append("latency", summarizeLatency(cfg))
	table.Append("packet loss", summarizeLoss(cfg))
	table.Append("bandwidth", summarizeBandwidth(cfg))

	table.Render()
}

func summarizeLatency(cfg *config.Config) string {
	if cfg.Latency.IsDisabled() {
		return "disabled"
	}
	s := fmt.Sprintf("fixed=%dms probability=%.2f", cfg.Latency.FixedMS, cfg.Latency.Probability)
	if cfg.Latency.RandomRange != nil {
		s += fmt.Sprintf(" random=%d-%dms", cfg.Latency.RandomRange[0], cfg.Latency.RandomRange[1])
	}
	return s
}

func summarizeLoss(cfg *config.Config) string {
	if cfg.Loss.IsDisabled() {
		return "disabled"
	}
	s := fmt.Sprintf("probability=%.3f", cfg.Loss.Probability)
	if cfg.Loss.BurstSize != nil {
		s += fmt.Sprintf(" burst_size=%d burst_probability=%.3f", *cfg.Loss.BurstSize, cfg.Loss.BurstProbability)
	}
	return s
}

func summarizeBandwidth(cfg *config.Config) string {
	if cfg.Bandwidth.IsDisabled() {
		return "disabled"
	}
	return fmt.Sprintf("limit=%dB/s burst=%dB", cfg.Bandwidth.LimitBytesPerSec, cfg.Bandwidth.BurstSize)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrUint16(key string, def uint16) uint16 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			return uint16(n)
		}
	}
	return def
}
