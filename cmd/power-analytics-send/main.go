// Command power-analytics-send talks to a running power-analyticsd over D-Bus.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	dbussvc "github.com/cptspacemanspiff/power-analytics/internal/dbus"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// daemon is the subset of the D-Bus client used by the commands.
type daemon interface {
	SendEvent(category, action, label string, value *int64, pkg string, sampled bool) error
	HitScreen(component string) error
	CaptureException(description, thread, pkg string) error
	UploadLog(pkg string, logs map[string]string) error
	SendLogs() error
	GetCurrentStats() (*dbussvc.CurrentStats, error)
	GetDischargeHistory(from, to time.Time) ([]storage.DischargeRecord, error)
	GetHardwareInfo() (map[string]string, error)
}

const usage = `Usage: power-analytics-send [--session-bus] <command> [flags]

Commands:
  event       send a custom event (--category, --action, --label, --value, --package, --sampled)
  screen      record a screen view (--component package/class)
  exception   send an exception report (--description, --thread, --package)
  log         upload key=value logs (--package, then key=value arguments)
  flush       upload pending hits now
  stats       print current battery state and estimator baseline
  history     print discharge events (--since duration)
  hardware    print reported hardware facts
`

func main() {
	session := false
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--session-bus" {
		session = true
		args = args[1:]
	}
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	client, err := dbussvc.NewClient(session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := run(client, args, os.Stdout, time.Now()); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "power-analytics-send: %v\n", err)
		os.Exit(1)
	}
}

func run(d daemon, args []string, out io.Writer, now time.Time) error {
	cmd, rest := args[0], args[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)

	switch cmd {
	case "event":
		category := fs.String("category", "", "event category")
		action := fs.String("action", "", "event action")
		label := fs.String("label", "", "event label")
		value := fs.Int64("value", 0, "event value")
		pkg := fs.String("package", "", "sending package")
		sampled := fs.Bool("sampled", false, "subject the event to sampling")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *category == "" || *action == "" {
			return fmt.Errorf("event: --category and --action are required")
		}
		var v *int64
		if fs.Changed("value") {
			v = value
		}
		return d.SendEvent(*category, *action, *label, v, *pkg, *sampled)

	case "screen":
		component := fs.String("component", "", "screen component as package/class")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return d.HitScreen(*component)

	case "exception":
		desc := fs.String("description", "", "exception description")
		thread := fs.String("thread", "", "thread name")
		pkg := fs.String("package", "", "sending package")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return d.CaptureException(*desc, *thread, *pkg)

	case "log":
		pkg := fs.String("package", "", "sending package")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		logs, err := parsePairs(fs.Args())
		if err != nil {
			return err
		}
		return d.UploadLog(*pkg, logs)

	case "flush":
		return d.SendLogs()

	case "stats":
		stats, err := d.GetCurrentStats()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)

	case "history":
		since := fs.Duration("since", 24*time.Hour, "how far back to look")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		events, err := d.GetDischargeHistory(now.Add(-*since), now)
		if err != nil {
			return err
		}
		return printHistory(out, events)

	case "hardware":
		facts, err := d.GetHardwareInfo()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(facts)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parsePairs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("log: at least one key=value argument is required")
	}
	logs := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("log: %q is not key=value", a)
		}
		logs[k] = v
	}
	return logs, nil
}

func printHistory(out io.Writer, events []storage.DischargeRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tRATE\tINTERVAL\tDROP")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f\n",
			time.Unix(e.Timestamp, 0).Format(time.DateTime),
			e.Action, e.Rate,
			time.Duration(e.IntervalSecs)*time.Second,
			e.Drop)
	}
	return tw.Flush()
}
