package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/api/handler"
	"github.com/OpenGrantStack/GrantReady-Ledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grantctl",
	Short: "GrantReady Ledger CLI",
	Long: `grantctl is the command-line interface for a GrantReady ledgerd
instance. It inspects the entry chain, runs integrity sweeps, queries
account balances and drives transactions through approval.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.grantctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("auth_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.grantctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "actor bearer token for mutating commands")

	txCmd.AddCommand(txGetCmd)
	txCmd.AddCommand(txSignCmd)
	txCmd.AddCommand(txExecuteCmd)
	txCmd.AddCommand(txCancelCmd)

	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if authToken != "" {
		opts = append(opts, client.WithBearerToken(authToken))
	}
	return client.New(serverURL, opts...)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the chain length and current tip",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		info, err := newClient().Ledger(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ENTRIES\t%d\n", info.Entries)
		fmt.Fprintf(w, "TIP\t%s\n", info.Tip)
		return w.Flush()
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a full integrity sweep over the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		report, err := newClient().Verify(ctx)
		if err != nil {
			return err
		}
		if report.Valid {
			fmt.Println("ledger OK")
			return nil
		}
		fmt.Println("ledger INTEGRITY VIOLATIONS:")
		for _, e := range report.Errors {
			fmt.Printf("  - %s\n", e)
		}
		for _, warn := range report.Warnings {
			fmt.Printf("  ~ %s\n", warn)
		}
		os.Exit(1)
		return nil
	},
}

// ── balance ──────────────────────────────────────────────────────────────────

var balanceCurrency string

var balanceCmd = &cobra.Command{
	Use:   "balance <account-id>",
	Short: "Show the balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		bal, err := newClient().Balance(ctx, args[0], balanceCurrency)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ACCOUNT\t%s\n", bal.AccountID)
		fmt.Fprintf(w, "BALANCE\t%s %s\n", bal.Balance, bal.Currency)
		fmt.Fprintf(w, "AS OF\t%s\n", bal.AsOf.Format(time.RFC3339))
		fmt.Fprintf(w, "VERIFIED\t%t\n", bal.Verified)
		return w.Flush()
	},
}

func init() {
	balanceCmd.Flags().StringVar(&balanceCurrency, "currency", "", "ISO 4217 currency (default: server default)")
}

// ── tx ───────────────────────────────────────────────────────────────────────

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect and drive transactions",
}

var txGetCmd = &cobra.Command{
	Use:   "get <transaction-id>",
	Short: "Fetch a transaction with its entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		raw, err := newClient().GetTransaction(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var (
	signSigner string
	signType   string
)

var txSignCmd = &cobra.Command{
	Use:   "sign <transaction-id> <signature-hex>",
	Short: "Add a signature to a transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		raw, err := newClient().Sign(ctx, args[0], signSigner, args[1], signType)
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

func init() {
	txSignCmd.Flags().StringVar(&signSigner, "signer", "", "signer id (required)")
	txSignCmd.Flags().StringVar(&signType, "type", "EdDSA", "signature scheme: ECDSA, EdDSA or RSA")
	_ = txSignCmd.MarkFlagRequired("signer")
}

var txExecuteCmd = &cobra.Command{
	Use:   "execute <transaction-id>",
	Short: "Anchor an approved transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		raw, err := newClient().Execute(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var cancelReason string

var txCancelCmd = &cobra.Command{
	Use:   "cancel <transaction-id>",
	Short: "Cancel a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().Cancel(ctx, args[0], cancelReason); err != nil {
			return err
		}
		fmt.Println("cancelled")
		return nil
	},
}

func init() {
	txCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "cancellation reason for the audit trail")
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenActor  string
	tokenSecret string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an actor bearer token",
	Long: `token mints an HS256 actor token for the mutating API routes. The
secret must match the server's server.auth_secret setting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := handler.IssueActorToken(tokenSecret, tokenActor, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor id recorded in audit trails (required)")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "shared HS256 secret (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("actor")
	_ = tokenCmd.MarkFlagRequired("secret")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the grantctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("grantctl", version)
	},
}

func printJSON(raw json.RawMessage) error {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
