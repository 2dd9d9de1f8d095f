package main

import (
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/external-dns/provider/webhook/api"

	"github.com/lachlan2k/external-dns-hostsblock-webhook/hostsfile"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hostsblock-webhook",
		Short:         "external-dns webhook owning a managed block of a hosts file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, hosts, err := openHosts(cmd, false)
			if err != nil {
				return err
			}
			return serve(cfg, hosts)
		},
	}
	registerFlags(root.PersistentFlags())
	root.AddCommand(newHostsCommands()...)
	return root
}

// openHosts loads configuration and returns an engine bound to the
// configured backend. The file itself is not read yet.
func openHosts(cmd *cobra.Command, mustExist bool) (*Config, *hostsfile.Hosts, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, err
	}

	persister, err := cfg.Persister(mustExist)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating persister")
	}

	hosts := hostsfile.New(persister,
		hostsfile.WithMarkers(cfg.Markers()),
		hostsfile.WithLogger(log.Logger.With().Str("component", "hostsfile").Logger()),
	)
	return cfg, hosts, nil
}

func newWebhookMux(provider *HostsfilesProvider) *http.ServeMux {
	p := api.WebhookServer{
		Provider: provider,
	}
	m := http.NewServeMux()
	m.HandleFunc("/", p.NegotiateHandler)
	m.HandleFunc("/records", p.RecordsHandler)
	m.HandleFunc("/adjustendpoints", p.AdjustEndpointsHandler)
	m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return m
}

func serve(cfg *Config, hosts *hostsfile.Hosts) error {
	provider := NewHostsfilesProvider(hosts, cfg.TTL, cfg.DomainFilter,
		log.Logger.With().Str("component", "provider").Logger())

	if err := hosts.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to read hosts file")
	}

	m := newWebhookMux(provider)

	log.Info().Str("listen", cfg.Listen).Str("health", cfg.HealthListen).Msg("listening")
	var g errgroup.Group
	g.Go(func() error { return http.ListenAndServe(cfg.HealthListen, m) })
	g.Go(func() error { return http.ListenAndServe(cfg.Listen, m) })
	return g.Wait()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}
