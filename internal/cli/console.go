// Package cli implements the interactive console of the development host: each
// typed line becomes client output for the helper, and slash commands inspect
// or steer the simulated client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/loginhelper/internal/host"
	"github.com/energizer-project/loginhelper/internal/protocol"
)

// Console reads player input and forwards it to a helper.
type Console struct {
	host    *host.Host
	client  *host.SimulatedClient
	monitor *host.ProcessMonitor // optional
	out     io.Writer
	cvars   []string
}

// NewConsole creates a console. cvars lists the names shown by /cvar.
func NewConsole(h *host.Host, client *host.SimulatedClient, monitor *host.ProcessMonitor, out io.Writer, cvars []string) *Console {
	return &Console{
		host:    h,
		client:  client,
		monitor: monitor,
		out:     out,
		cvars:   cvars,
	}
}

// Start runs the input loop until in is exhausted, /quit is typed or ctx is
// done. It closes the helper's input before returning.
func (c *Console) Start(ctx context.Context, in io.Reader) {
	defer c.host.CloseInput()

	fmt.Fprintln(c.out, "\nHelper console ready. Lines are sent as client output; type /help for commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := c.host.ClientOutput(line); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
				return
			}
			continue
		}

		parts := strings.Fields(line[1:])
		if len(parts) == 0 {
			continue
		}
		quit, err := c.execute(strings.ToLower(parts[0]), parts[1:])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
}

// execute processes a single console command.
func (c *Console) execute(cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "cvar":
		return false, c.cmdCvar(args)
	case "transcript", "t":
		c.host.Transcript().Render(c.out)
	case "stats":
		return false, c.PrintStats()
	case "eocmd":
		return false, c.host.Send(protocol.Message{Op: protocol.OpEndOfCommand})
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Closing helper input...")
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type /help for available commands.\n", cmd)
	}
	return false, nil
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "  <text>              Send text as client output (e.g. !about, !hello, !bye)")
	fmt.Fprintln(c.out, "  /cvar [name [val]]  Show or set a client variable")
	fmt.Fprintln(c.out, "  /transcript         Show all traffic so far")
	fmt.Fprintln(c.out, "  /stats              Show helper process usage")
	fmt.Fprintln(c.out, "  /eocmd              Send an end-of-command marker")
	fmt.Fprintln(c.out, "  /quit               Close the helper's input")
}

func (c *Console) cmdCvar(args []string) error {
	switch len(args) {
	case 0:
		names := append([]string(nil), c.cvars...)
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.out, "  %s = %q\n", name, c.client.Cvar(name))
		}
	case 1:
		fmt.Fprintf(c.out, "  %s = %q\n", args[0], c.client.Cvar(args[0]))
	default:
		c.client.SetCvar(args[0], strings.Join(args[1:], " "))
		if !contains(c.cvars, args[0]) {
			c.cvars = append(c.cvars, args[0])
		}
	}
	return nil
}

// PrintStats renders the helper's resource samples as a table.
func (c *Console) PrintStats() error {
	if c.monitor == nil {
		return fmt.Errorf("process monitoring is not available")
	}

	samples := c.monitor.Samples()
	if len(samples) == 0 {
		return fmt.Errorf("no samples yet")
	}
	last := samples[len(samples)-1]

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Samples", "CPU %", "RSS MB", "Peak RSS MB", "Threads"})
	tw.SetBorder(true)
	tw.Append([]string{
		fmt.Sprintf("%d", len(samples)),
		fmt.Sprintf("%.1f", last.CPUPercent),
		fmt.Sprintf("%.1f", last.MemoryMB),
		fmt.Sprintf("%.1f", c.monitor.PeakMemoryMB()),
		fmt.Sprintf("%d", last.Threads),
	})
	tw.Render()
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
