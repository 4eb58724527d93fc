package main

import (
	"io"
	"strings"

	"github.com/andrej220/routerconfig/pkg/config"
	"github.com/namsral/flag"
)

const envPrefix = "ROUTERCONFIG"

// cliOptions are the settings that only exist on the command line.
type cliOptions struct {
	configPath  string
	configStore string
	configID    string
	configColl  string
	saveConfig  string
	replayRun   string
	debug       bool
	logFormat   string

	// overrides holds every run setting given as a flag or environment
	// variable; set names the ones actually given.
	overrides config.RunConfig
	set       map[string]bool
}

// overrideFns copy one explicitly given setting onto the loaded config.
var overrideFns = map[string]func(dst, src *config.RunConfig){
	"devices":           func(d, s *config.RunConfig) { d.Devices = s.Devices },
	"commands":          func(d, s *config.RunConfig) { d.Commands = s.Commands },
	"output":            func(d, s *config.RunConfig) { d.Output = s.Output },
	"username":          func(d, s *config.RunConfig) { d.Username = s.Username },
	"password":          func(d, s *config.RunConfig) { d.Password = s.Password },
	"workers":           func(d, s *config.RunConfig) { d.Workers = s.Workers },
	"port":              func(d, s *config.RunConfig) { d.Port = s.Port },
	"device-timeout":    func(d, s *config.RunConfig) { d.DeviceTimeout = s.DeviceTimeout },
	"command-timeout":   func(d, s *config.RunConfig) { d.CommandTimeout = s.CommandTimeout },
	"connect-timeout":   func(d, s *config.RunConfig) { d.ConnectTimeout = s.ConnectTimeout },
	"connect-attempts":  func(d, s *config.RunConfig) { d.ConnectAttempts = s.ConnectAttempts },
	"pacing-delay":      func(d, s *config.RunConfig) { d.PacingDelay = s.PacingDelay },
	"legacy-prefix":     func(d, s *config.RunConfig) { d.LegacyPrefix = s.LegacyPrefix },
	"legacy-suffix":     func(d, s *config.RunConfig) { d.LegacySuffix = s.LegacySuffix },
	"probe-command":     func(d, s *config.RunConfig) { d.ProbeCommand = s.ProbeCommand },
	"breaker-threshold": func(d, s *config.RunConfig) { d.BreakerThreshold = s.BreakerThreshold },
	"kafka-brokers":     func(d, s *config.RunConfig) { d.Kafka.Brokers = s.Kafka.Brokers },
	"kafka-topic":       func(d, s *config.RunConfig) { d.Kafka.Topic = s.Kafka.Topic },
	"facts-backend":     func(d, s *config.RunConfig) { d.Facts.Backend = s.Facts.Backend },
	"facts-path":        func(d, s *config.RunConfig) { d.Facts.Path = s.Facts.Path },
	"mongo-uri":         func(d, s *config.RunConfig) { d.Mongo.URI = s.Mongo.URI },
	"mongo-database":    func(d, s *config.RunConfig) { d.Mongo.Database = s.Mongo.Database },
	"mongo-collection":  func(d, s *config.RunConfig) { d.Mongo.Collection = s.Mongo.Collection },
}

// parseFlags reads args and ROUTERCONFIG_* environment variables.
func parseFlags(args []string, output io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: map[string]bool{}}
	def := config.Default()
	o := &opts.overrides

	fs := flag.NewFlagSetWithEnvPrefix("routerconfig", envPrefix, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.configPath, "config-file", "", "YAML config file")
	fs.StringVar(&opts.configStore, "config-store", "file", "config store: file or mongo")
	fs.StringVar(&opts.configID, "config-id", "routerconfig", "config document id (mongo store)")
	fs.StringVar(&opts.configColl, "config-collection", "config", "config collection (mongo store)")
	fs.StringVar(&opts.saveConfig, "save-config", "", "write the effective config (password redacted) to this YAML file")
	fs.StringVar(&opts.replayRun, "replay-run", "", "rebuild the report of this run id from the Kafka mirror instead of dispatching")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.StringVar(&opts.logFormat, "log-format", "json", "log format: json or console")

	fs.StringVar(&o.Devices, "devices", "", "device list file, one name per line")
	fs.StringVar(&o.Commands, "commands", "", "command batch file")
	fs.StringVar(&o.Output, "output", "", "report file")
	fs.StringVar(&o.Username, "username", "", "SSH username")
	fs.StringVar(&o.Password, "password", "", "SSH password")
	fs.IntVar(&o.Workers, "workers", def.Workers, "devices processed in parallel")
	fs.IntVar(&o.Port, "port", def.Port, "SSH port")
	fs.DurationVar(&o.DeviceTimeout, "device-timeout", def.DeviceTimeout, "deadline for one device")
	fs.DurationVar(&o.CommandTimeout, "command-timeout", def.CommandTimeout, "deadline for one command's prompt")
	fs.DurationVar(&o.ConnectTimeout, "connect-timeout", def.ConnectTimeout, "SSH dial timeout")
	fs.IntVar(&o.ConnectAttempts, "connect-attempts", def.ConnectAttempts, "connection attempts per device")
	fs.DurationVar(&o.PacingDelay, "pacing-delay", def.PacingDelay, "pause after each command is sent")
	fs.StringVar(&o.LegacyPrefix, "legacy-prefix", def.LegacyPrefix, "name prefix that gets the legacy domain suffix")
	fs.StringVar(&o.LegacySuffix, "legacy-suffix", def.LegacySuffix, "legacy domain suffix")
	fs.StringVar(&o.ProbeCommand, "probe-command", def.ProbeCommand, "reachability probe, host is appended")
	breaker := fs.Uint("breaker-threshold", uint(def.BreakerThreshold), "consecutive connection failures that stop the run's dialling, 0 disables")
	brokers := fs.String("kafka-brokers", "", "comma separated Kafka brokers mirroring the report")
	fs.StringVar(&o.Kafka.Topic, "kafka-topic", "", "Kafka topic for the report mirror")
	fs.StringVar(&o.Facts.Backend, "facts-backend", def.Facts.Backend, "device facts store: none, json, mongo or sqlite")
	fs.StringVar(&o.Facts.Path, "facts-path", "", "directory (json) or database file (sqlite) for device facts")
	fs.StringVar(&o.Mongo.URI, "mongo-uri", "", "MongoDB URI for facts and the mongo config store")
	fs.StringVar(&o.Mongo.Database, "mongo-database", def.Mongo.Database, "MongoDB database")
	fs.StringVar(&o.Mongo.Collection, "mongo-collection", def.Mongo.Collection, "MongoDB collection for device facts")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.BreakerThreshold = uint32(*breaker)
	o.Kafka.Brokers = splitList(*brokers)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// apply copies every explicitly given setting onto cfg.
func (o *cliOptions) apply(cfg *config.RunConfig) {
	for name := range o.set {
		if fn, ok := overrideFns[name]; ok {
			fn(cfg, &o.overrides)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
