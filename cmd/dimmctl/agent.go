package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/dimmctl/internal/config"
	"github.com/mscrnt/dimmctl/pkg/agent"
	"github.com/mscrnt/dimmctl/pkg/cert"
)

func agentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Status agent for remote monitoring",
		Long: `The status agent serves device snapshots, recorded readings and host
information over mutual TLS. It runs inside "dimmctl monitor" when enabled;
"agent serve" runs it on its own with the recorded history only.`,
	}

	cmd.AddCommand(agentServeCmd(a))
	cmd.AddCommand(agentQueryCmd(a))
	cmd.AddCommand(agentCertsCmd())

	return cmd
}

func agentServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded readings without monitoring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			server, err := agent.NewServer(a.cfg.AgentServerConfig(), agent.Sources{Readings: database})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				return nil

			case err := <-errChan:
				return err
			}
		},
	}

	return cmd
}

func agentQueryCmd(a *app) *cobra.Command {
	var (
		clientConfig agent.ClientConfig
		query        []string
		pretty       bool
	)

	cmd := &cobra.Command{
		Use:   "query ENDPOINT",
		Short: "Query a remote agent",
		Long: `Query a status agent. Endpoints: health, devices, readings, host.

Examples:
  # Devices of a remote machine
  dimmctl agent query devices --host 192.168.1.100 \
    --cert client.crt --key client.key --ca ca.crt --pretty

  # Last 10 readings of one module
  dimmctl agent query readings --query "device=Corsair Vengeance RGB DIMM2 (experimental)" \
    --query limit=10 --cert client.crt --key client.key --ca ca.crt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") && a.cfg.Agent.Port != 0 {
				clientConfig.Port = a.cfg.Agent.Port
			}

			values := url.Values{}
			for _, q := range query {
				parsed, err := url.ParseQuery(q)
				if err != nil {
					return fmt.Errorf("invalid --query %q: %w", q, err)
				}
				for k, vs := range parsed {
					values[k] = append(values[k], vs...)
				}
			}

			client, err := agent.NewClient(clientConfig)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			data, err := client.Get(cmd.Context(), args[0], values)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if pretty && json.Valid(data) {
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err == nil {
					fprintf(out, "%s", buf.String())
					return nil
				}
			}
			fprintf(out, "%s", data)
			return nil
		},
	}

	defaults := agent.DefaultClientConfig()
	cmd.Flags().StringVar(&clientConfig.Host, "host", defaults.Host, "Target host")
	cmd.Flags().IntVar(&clientConfig.Port, "port", defaults.Port, "Target port")
	cmd.Flags().StringVar(&clientConfig.CertFile, "cert", "", "Client certificate file (required)")
	cmd.Flags().StringVar(&clientConfig.KeyFile, "key", "", "Client private key file (required)")
	cmd.Flags().StringVar(&clientConfig.CAFile, "ca", "", "CA certificate file for server verification (required)")
	cmd.Flags().StringArrayVar(&query, "query", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print JSON output")

	return cmd
}

func agentCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the agent's certificate authority",
	}

	cmd.AddCommand(certsInitCmd())
	cmd.AddCommand(certsIssueCmd())
	cmd.AddCommand(certsVerifyCmd())

	return cmd
}

func defaultCADir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ca"), nil
}

func caPaths(dir string) (certPath, keyPath string, err error) {
	if dir == "" {
		if dir, err = defaultCADir(); err != nil {
			return "", "", err
		}
	}
	return filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"), nil
}

func certsInitCmd() *cobra.Command {
	var (
		caDir string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the certificate authority",
		Long: `Create a self-signed certificate authority that signs the agent and
client certificates.

Examples:
  # Create the CA in ~/.config/dimmctl/ca
  dimmctl agent certs init

  # Replace an existing CA
  dimmctl agent certs init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			certPath, keyPath, err := caPaths(caDir)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
				return fmt.Errorf("failed to create CA directory: %w", err)
			}

			if !force {
				if _, err := os.Stat(certPath); err == nil {
					return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", certPath)
				}
			}

			ca, err := cert.NewAuthority()
			if err != nil {
				return fmt.Errorf("failed to create CA: %w", err)
			}
			if err := ca.SaveCA(certPath, keyPath); err != nil {
				return fmt.Errorf("failed to save CA: %w", err)
			}

			fprintf(cmd.OutOrStdout(), "CA certificate: %s\nCA key:         %s\n", certPath, keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&caDir, "ca-dir", "", "CA directory (default: ~/.config/dimmctl/ca)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing CA")

	return cmd
}

func certsIssueCmd() *cobra.Command {
	var (
		caDir    string
		client   bool
		hosts    []string
		validFor time.Duration
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "issue NAME",
		Short: "Issue a server or client certificate",
		Long: `Issue a certificate signed by the CA. Writes NAME.crt and NAME.key.

Examples:
  # Certificate for the agent on this machine
  dimmctl agent certs issue agent --host localhost --host 192.168.1.100

  # Certificate for a client
  dimmctl agent certs issue laptop --client`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			certPath, keyPath, err := caPaths(caDir)
			if err != nil {
				return err
			}
			ca, err := cert.LoadCA(certPath, keyPath)
			if err != nil {
				return err
			}

			usage := cert.ServerUsage
			if client {
				usage = cert.ClientUsage
			}

			issued, err := ca.Issue(name, usage, hosts, validFor)
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = filepath.Dir(certPath)
			}
			crt := filepath.Join(outDir, name+".crt")
			key := filepath.Join(outDir, name+".key")
			if err := issued.Save(crt, key); err != nil {
				return err
			}

			fprintf(cmd.OutOrStdout(), "Issued %s certificate %s\nKey: %s\n", usage, crt, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&caDir, "ca-dir", "", "CA directory (default: ~/.config/dimmctl/ca)")
	cmd.Flags().BoolVar(&client, "client", false, "Issue a client certificate instead of a server one")
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "Host names or addresses of the server")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "Validity period")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default: the CA directory)")

	return cmd
}

func certsVerifyCmd() *cobra.Command {
	var caCert string

	cmd := &cobra.Command{
		Use:   "verify CERT",
		Short: "Verify a certificate against the CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caCert == "" {
				path, _, err := caPaths("")
				if err != nil {
					return err
				}
				caCert = path
			}

			result, err := cert.VerifyCertificateFile(args[0], caCert)
			if err != nil {
				return err
			}

			fprintf(cmd.OutOrStdout(), "%s", cert.FormatVerifyResult(result))
			if !result.Valid {
				return fmt.Errorf("certificate is not valid")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caCert, "ca", "", "CA certificate (default: ~/.config/dimmctl/ca/ca.crt)")

	return cmd
}
