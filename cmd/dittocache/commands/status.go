package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/internal/cli/output"
	"github.com/marmos91/dittocache/pkg/apiclient"
)

var (
	statusServer  string
	statusOutput  string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the memory budget, flush state and caches of a running server.

Examples:
  # Check a local server
  dittocache status

  # Check a remote server
  dittocache status --server http://cache-01:8080

  # Output as JSON
  dittocache status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "API server URL")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request timeout")
}

// ServerStatus is the status report printed by the status command.
type ServerStatus struct {
	Server   string                    `json:"server" yaml:"server"`
	Ready    bool                      `json:"ready" yaml:"ready"`
	Message  string                    `json:"message,omitempty" yaml:"message,omitempty"`
	Status   *apiclient.Status         `json:"status,omitempty" yaml:"status,omitempty"`
	Backends []apiclient.BackendHealth `json:"backends,omitempty" yaml:"backends,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	report, err := fetchStatus(ctx, apiclient.New(statusServer).WithTimeout(statusTimeout))
	if err != nil {
		return err
	}
	report.Server = statusServer

	printer := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if format != output.FormatTable {
		return printer.Print(report)
	}
	return printStatusTable(printer, report)
}

func fetchStatus(ctx context.Context, client *apiclient.Client) (*ServerStatus, error) {
	report := &ServerStatus{Ready: true}

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("server is not reachable: %w", err)
	}
	if err := client.Ready(ctx); err != nil {
		report.Ready = false
		report.Message = err.Error()
	}

	st, err := client.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	report.Status = st

	backends, err := client.Backends(ctx)
	var apiErr *apiclient.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.IsUnavailable()) {
		return nil, fmt.Errorf("failed to fetch backend health: %w", err)
	}
	report.Backends = backends
	return report, nil
}

func printStatusTable(p *output.Printer, r *ServerStatus) error {
	st := r.Status
	state := "ready"
	if !r.Ready {
		state = "not ready: " + r.Message
	}

	kv := output.KeyValues{}.
		Add("Server", r.Server).
		Add("State", state).
		Add("Version", st.Version).
		Add("Uptime", output.Uptime(st.Uptime)).
		Add("Buffered", output.Usage(st.Tracker.Size, st.Tracker.MaxSize)).
		Add("Flush period", st.Tracker.Period.String()).
		Add("Flush queued", output.YesNo(st.Tracker.Queued)).
		Add("Flush running", output.YesNo(st.Tracker.Running)).
		Add("Jobs pending", strconv.Itoa(st.Scheduler.Pending)).
		Add("Next flush", nextFlush(st.Scheduler.NextDue)).
		Add("Admitted", fmt.Sprintf("%d (%s)", st.Tracker.Admitted, output.Bytes(int64(st.Tracker.AdmittedBytes)))).
		Add("Refused", strconv.FormatUint(st.Tracker.Refused, 10)).
		Add("Sweeps", fmt.Sprintf("%d routine, %d urgent", st.Tracker.RoutineSweeps, st.Tracker.UrgentSweeps)).
		Add("Flushed", output.Bytes(int64(st.Tracker.FlushedBytes)))
	if st.Tracker.AccountingDefects > 0 {
		kv = kv.Add("Accounting defects", strconv.FormatUint(st.Tracker.AccountingDefects, 10))
	}
	if err := output.PrintKeyValues(p.Writer(), kv); err != nil {
		return err
	}

	health := make(map[string]apiclient.BackendHealth, len(r.Backends))
	for _, b := range r.Backends {
		health[b.Cache] = b
	}

	table := output.NewTableData("Cache", "Backend", "Buffered", "Blocks", "Health")
	for _, c := range st.Caches {
		h := "unknown"
		if b, ok := health[c.Name]; ok {
			h = b.Status
			if b.Error != "" {
				h += ": " + b.Error
			}
		}
		table.AddRow(c.Name, c.Backend, output.Bytes(c.Size), strconv.Itoa(c.Blocks), h)
	}

	p.Println()
	return output.PrintTable(p.Writer(), table)
}

func nextFlush(due *time.Time) string {
	if due == nil {
		return "-"
	}
	d := time.Until(*due)
	if d < 0 {
		d = 0
	}
	return "in " + d.Round(time.Millisecond).String()
}
