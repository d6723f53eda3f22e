package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"cryptodash/internal/api"
	"cryptodash/internal/config"
	"cryptodash/pkg/cryptodash"
)

const version = "0.1.0"

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cryptodash-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status                       Show the data refresh job\n")
		fmt.Fprintf(os.Stderr, "  search <query>               Search trading pairs\n")
		fmt.Fprintf(os.Stderr, "  price <symbol> [coin_id]     Look up a spot price\n")
		fmt.Fprintf(os.Stderr, "  refresh [-wait]              Start a data refresh\n")
		fmt.Fprintf(os.Stderr, "  positions <wallet>           List lending positions (DEMO for sample data)\n")
		fmt.Fprintf(os.Stderr, "  health [-json]               Query the gRPC health service\n")
		fmt.Fprintf(os.Stderr, "\nEvery command accepts -config <path>.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "cryptodash-cli %s\n", version)

	case "status":
		err = runStatus(args)

	case "search":
		err = runSearch(args)

	case "price":
		err = runPrice(args)

	case "refresh":
		err = runRefresh(args)

	case "positions":
		err = runPositions(args)

	case "health":
		err = runHealth(args)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// commandFlags returns a flag set carrying the shared -config flag.
func commandFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("config", os.Getenv("CRYPTODASH_CONFIG"), "path to YAML config file")
	return fs, path
}

func loadClient(path string) (*config.Config, *cryptodash.Client, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cryptodash.NewClient(cfg.Client.APIURL, cfg.Client.RequestTimeout), nil
}

func runStatus(args []string) error {
	fs, path := commandFlags("status")
	fs.Parse(args)
	_, client, err := loadClient(*path)
	if err != nil {
		return err
	}

	st, err := client.RefreshStatus(context.Background())
	if err != nil {
		return err
	}
	printStatus(st)
	return nil
}

func printStatus(st cryptodash.RefreshStatus) {
	line := fmt.Sprintf("status: %s", st.Status)
	if st.Stage != "" {
		line += fmt.Sprintf("  stage: %s", st.Stage)
	}
	if st.Total > 0 {
		line += fmt.Sprintf("  %d/%d", st.Current, st.Total)
	}
	if st.ErrorMessage != "" {
		line += fmt.Sprintf("  error: %s", st.ErrorMessage)
	}
	fmt.Fprintln(stdout, line)
}

func runSearch(args []string) error {
	fs, path := commandFlags("search")
	fs.Parse(args)
	_, client, err := loadClient(*path)
	if err != nil {
		return err
	}

	got, err := client.SearchPairs(context.Background(), strings.Join(fs.Args(), " "))
	if cryptodash.IsDatasetMissing(err) {
		return errors.New("no dataset on the server yet, run `cryptodash-cli refresh -wait` first")
	}
	if err != nil {
		return err
	}
	if len(got) == 0 {
		fmt.Fprintln(stdout, "no matches")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tID\tBINANCE")
	for _, s := range got {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", s.Symbol, s.Name, s.ID, s.Tradable)
	}
	return w.Flush()
}

func runPrice(args []string) error {
	fs, path := commandFlags("price")
	tradable := fs.Bool("tradable", false, "try Binance first")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: price <symbol> [coin_id] [-tradable]")
	}
	_, client, err := loadClient(*path)
	if err != nil {
		return err
	}

	symbol, coinID := fs.Arg(0), fs.Arg(1)
	q, err := client.GetPrice(context.Background(), symbol, coinID, *tradable)
	if err != nil {
		return errors.New(cryptodash.DetailOrDefault(err, err.Error()))
	}
	fmt.Fprintf(stdout, "%s  $%s  (%s)\n", q.Symbol, q.Price.String(), q.Source)
	return nil
}

func runRefresh(args []string) error {
	fs, path := commandFlags("refresh")
	wait := fs.Bool("wait", false, "poll until the job finishes")
	fs.Parse(args)
	cfg, client, err := loadClient(*path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	msg, err := client.StartRefresh(ctx)
	switch {
	case cryptodash.IsConflict(err):
		fmt.Fprintln(stdout, "a refresh is already running")
	case err != nil:
		return err
	default:
		fmt.Fprintln(stdout, msg)
	}
	if !*wait {
		return nil
	}

	ticker := time.NewTicker(cfg.Client.PollInterval)
	defer ticker.Stop()
	for range ticker.C {
		st, err := client.RefreshStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(st)
		switch st.Status {
		case cryptodash.StatusComplete:
			return nil
		case cryptodash.StatusError:
			return errors.Errorf("refresh failed: %s", st.ErrorMessage)
		}
	}
	return nil
}

func runPositions(args []string) error {
	fs, path := commandFlags("positions")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: positions <wallet>")
	}
	_, client, err := loadClient(*path)
	if err != nil {
		return err
	}

	got, err := client.LendingPositions(context.Background(), fs.Arg(0))
	if err != nil {
		return errors.New(cryptodash.DetailOrDefault(err, err.Error()))
	}
	if len(got) == 0 {
		fmt.Fprintln(stdout, "no open positions")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tCOLLATERAL\tBORROWED\tRATIO\tHEALTH\tRISK")
	for _, p := range got {
		fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t%.1f%%\t%.2f\t%s\n",
			p.Key(), p.CollateralValue, p.BorrowValue, p.Ratio, p.HealthFactor, strings.ToUpper(p.RiskLevel))
	}
	return w.Flush()
}

func runHealth(args []string) error {
	fs, path := commandFlags("health")
	addr := fs.String("addr", "", "gRPC address (default 127.0.0.1:<server.grpc_port>)")
	asJSON := fs.Bool("json", false, "print raw health responses as JSON")
	fs.Parse(args)
	cfg, err := config.LoadOrDefault(*path)
	if err != nil {
		return err
	}
	if *addr == "" {
		*addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Server.GRPCPort))
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, svc := range []string{"", api.CatalogService} {
		res, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
		if err != nil {
			return err
		}
		name := svc
		if name == "" {
			name = "server"
		}
		if *asJSON {
			b, err := protojson.Marshal(res)
			if err != nil {
				return errors.Wrap(err, "encoding health response")
			}
			fmt.Fprintf(stdout, "{\"service\":%q,\"response\":%s}\n", name, b)
			continue
		}
		fmt.Fprintf(stdout, "%-20s %s\n", name, res.GetStatus())
	}
	return nil
}
