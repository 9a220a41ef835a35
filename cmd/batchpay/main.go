package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carlton-source/sbtc-batch-lib/internal/api"
	"github.com/carlton-source/sbtc-batch-lib/internal/config"
	"github.com/carlton-source/sbtc-batch-lib/internal/contract"
	historydb "github.com/carlton-source/sbtc-batch-lib/internal/database"
	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/internal/price"
	"github.com/carlton-source/sbtc-batch-lib/internal/storage"
	"github.com/carlton-source/sbtc-batch-lib/internal/wallet"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
	"github.com/carlton-source/sbtc-batch-lib/lib/progress"
)

var rootCmd = &cobra.Command{
	Use:   "batchpay",
	Short: "sBTC batch transfer tool",
	Long:  `Send sBTC to up to 200 recipients in one transaction, from the CLI or through the HTTP API.`,
}

var submitMock bool

func init() {
	cobra.OnInitialize(initConfig)

	submitCmd.Flags().BoolVar(&submitMock, "mock", false, "use the mock sBTC token")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCSVCmd)
	rootCmd.AddCommand(csvTemplateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(exportHistoryCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(statsCmd)
}

func initConfig() {
	err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := logger.Init(viper.GetString("ENV"), viper.GetString("log_level")); err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func stacksConfig() contract.StacksConfig {
	return contract.StacksConfig{
		APIURL:          viper.GetString("stacks_api_url"),
		ContractAddress: viper.GetString("contract_address"),
		ContractName:    viper.GetString("contract_name"),
		SBTCContract:    viper.GetString("sbtc_contract"),
		MockContract:    viper.GetString("mock_sbtc_contract"),
		MaxRecipients:   viper.GetInt("max_recipients"),
	}
}

func newPoller() *price.Poller {
	return price.NewPoller(price.Config{
		FeedURL:    viper.GetString("price_feed_url"),
		CoinID:     viper.GetString("price_coin_id"),
		Interval:   viper.GetDuration("price_poll_interval"),
		MaxRetries: viper.GetInt("price_max_retries"),
	})
}

// openConnector restores the persisted wallet session, connecting fresh
// when none survives.
func openConnector(ctx context.Context, store *storage.Store) (*wallet.Connector, wallet.Session, error) {
	provider := wallet.NewRPCProvider(viper.GetString("wallet_rpc_url"))
	connector := wallet.NewConnector(provider, store, viper.GetString("network"))

	session, ok, err := connector.Restore()
	if err != nil {
		return nil, wallet.Session{}, err
	}
	if !ok {
		session, err = connector.Connect(ctx, "")
		if err != nil {
			return nil, wallet.Session{}, err
		}
	}
	return connector, session, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServer(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServer() error {
	if err := historydb.InitSQLiteDB(viper.GetString("history_db_path")); err != nil {
		return err
	}
	store, err := storage.Open(viper.GetString("session_db_path"))
	if err != nil {
		return err
	}

	poller := newPoller()
	go poller.Start(context.Background())

	provider := wallet.NewRPCProvider(viper.GetString("wallet_rpc_url"))
	connector := wallet.NewConnector(provider, store, viper.GetString("network"))
	if session, ok, err := connector.Restore(); err != nil {
		logger.Warnf("could not restore wallet session: %v", err)
	} else if ok {
		logger.Infof("restored wallet session for %s", session.Address)
	}

	signer := contract.NewRPCSigner(viper.GetString("wallet_rpc_url"))
	client := contract.NewStacksClient(stacksConfig(), signer)
	controller := progress.NewController(nil)

	if err := api.InitJWTKey(); err != nil {
		return err
	}

	server := api.NewAPI(client, connector, poller, store, controller)
	return server.StartServer()
}

var parseCSVCmd = &cobra.Command{
	Use:   "parse-csv [file]",
	Short: "Validate a recipient CSV file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}

		rows := batch.ParseCSV(string(data))
		valid := 0
		for _, row := range rows {
			if row.Valid {
				valid++
			}
		}

		result := struct {
			Rows    []batch.Row `json:"rows"`
			Valid   int         `json:"valid"`
			Invalid int         `json:"invalid"`
		}{rows, valid, len(rows) - valid}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}

var csvTemplateCmd = &cobra.Command{
	Use:   "csv-template [file]",
	Short: "Write the starter CSV template",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println(batch.TemplateCSV())
			return
		}
		if err := os.WriteFile(args[0], []byte(batch.TemplateCSV()), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Template written to %s\n", args[0])
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [csv-file]",
	Short: "Submit a batch transfer from a CSV file",
	Long:  `Parse the CSV file, validate every row, and submit the valid recipients as one batch through the connected wallet.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSubmit(args[0], submitMock); err != nil {
			fmt.Fprintf(os.Stderr, "Error submitting batch: %v\n", err)
			os.Exit(1)
		}
	},
}

func runSubmit(path string, mock bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", path, err)
	}

	list := batch.NewList(viper.GetInt("max_recipients"))
	imported := list.Import(batch.ParseCSV(string(data)))
	recipients := list.ForSubmission()
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients in %s", path)
	}
	logger.Infof("imported %d recipients from %s", imported, path)

	if err := historydb.InitSQLiteDB(viper.GetString("history_db_path")); err != nil {
		return err
	}
	store, err := storage.Open(viper.GetString("session_db_path"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	_, session, err := openConnector(ctx, store)
	if err != nil {
		return err
	}

	signer := contract.NewRPCSigner(viper.GetString("wallet_rpc_url"))
	client := contract.NewStacksClient(stacksConfig(), signer)

	controller := progress.NewController(list.Clear)
	submitter := api.NewChainSubmitter(client, session.Address, mock)
	txID, err := controller.Run(ctx, submitter, recipients)
	if err != nil {
		return err
	}
	controller.Finish()

	record, err := historydb.SaveBatch(txID, session.Address, recipients,
		batch.EstimateFee(contract.Total(recipients)), mock)
	if err != nil {
		logger.Errorf("failed to record batch: %v", err)
	}

	if err := clipboard.WriteAll(txID); err != nil {
		logger.Debugf("could not copy txid to clipboard: %v", err)
	}

	result := struct {
		TxID       string `json:"txId"`
		BatchID    int64  `json:"batchId,omitempty"`
		Recipients int    `json:"recipients"`
		TotalSats  int64  `json:"totalSats"`
		Explorer   string `json:"explorer"`
	}{
		TxID:       txID,
		Recipients: len(recipients),
		TotalSats:  contract.Total(recipients),
		Explorer:   fmt.Sprintf("%s/txid/%s?chain=%s", viper.GetString("explorer_url"), txID, viper.GetString("network")),
	}
	if record != nil {
		result.BatchID = record.ID
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}

var mintCmd = &cobra.Command{
	Use:   "mint [amount-sats] [recipient]",
	Short: "Mint mock sBTC for testnet trials",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || amount <= 0 {
			fmt.Fprintf(os.Stderr, "Invalid amount: %s\n", args[0])
			os.Exit(1)
		}

		store, err := storage.Open(viper.GetString("session_db_path"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		_, session, err := openConnector(ctx, store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting wallet: %v\n", err)
			os.Exit(1)
		}

		recipient := session.Address
		if len(args) > 1 {
			recipient = args[1]
		}

		signer := contract.NewRPCSigner(viper.GetString("wallet_rpc_url"))
		client := contract.NewStacksClient(stacksConfig(), signer)
		result, err := client.MintMockSBTC(ctx, amount, recipient)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error minting: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}

var exportHistoryCmd = &cobra.Command{
	Use:   "export-history [file]",
	Short: "Export the batch history as CSV",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := historydb.InitSQLiteDB(viper.GetString("history_db_path")); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history database: %v\n", err)
			os.Exit(1)
		}

		records, _, err := historydb.ListBatches(historydb.ListFilter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing batches: %v\n", err)
			os.Exit(1)
		}

		csv := batch.HistoryCSV(historydb.ExportRows(records))
		if len(args) == 0 {
			fmt.Println(csv)
			return
		}
		if err := os.WriteFile(args[0], []byte(csv), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d batches to %s\n", len(records), args[0])
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List built-in and custom recipient templates",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := storage.Open(viper.GetString("session_db_path"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
			os.Exit(1)
		}

		custom, err := store.LoadTemplates()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading templates: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(append(batch.BuiltinTemplates(), custom...))
	},
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Fetch the current BTC price",
	Run: func(cmd *cobra.Command, args []string) {
		poller := newPoller()
		poller.Refresh(context.Background())

		quote, err := poller.Quote()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching price: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(quote)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [address]",
	Short: "Show on-chain batch stats for an address",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := contract.NewStacksClient(stacksConfig(), nil)
		ctx := context.Background()

		stats, err := client.GetSenderStats(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching stats: %v\n", err)
			os.Exit(1)
		}
		info, err := client.GetContractInfo(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching contract info: %v\n", err)
			os.Exit(1)
		}

		result := struct {
			Address  string               `json:"address"`
			Stats    contract.SenderStats `json:"stats"`
			Contract contract.Info        `json:"contract"`
		}{args[0], stats, info}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}
