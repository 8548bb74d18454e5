package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"stackctl/host/output"
	"stackctl/host/rig"
	"stackctl/protocol"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt sending commands over one connection",
		Long: `shell keeps a single connection open and reads commands from stdin.
Arguments are split like a POSIX shell, so JSON payloads can be quoted:

  > set_exposure '{"micros": 2500}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, stop, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := interruptible(cmd)
			defer cancel()
			return a.shell(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), r)
		},
	}
}

func (a *app) shell(ctx context.Context, in io.Reader, out io.Writer, r *rig.Rig) error {
	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintln(out, output.Error(err.Error()))
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return nil

		case "help", "?":
			printShellHelp(out)

		case "kinds":
			fmt.Fprint(out, a.formatter.Format(output.KindRows()))

		case "stats":
			tr := r.Transport()
			fmt.Fprintf(out, "state: %s  port: %s  pending: %d\n", tr.State(), tr.Port(), tr.Pending())
			fmt.Fprint(out, a.formatter.Format(tr.Stats()))

		case "move":
			if err := shellMove(ctx, out, r, parts[1:]); err != nil {
				fmt.Fprintln(out, output.Error(err.Error()))
			}

		default:
			kind, ok := protocol.KindByName(parts[0])
			if !ok {
				fmt.Fprintf(out, "Unknown command: %s (type 'help' for available commands)\n", parts[0])
				continue
			}
			info, _ := protocol.LookupKind(kind)
			msg, err := buildMessage(info, parts[1:])
			if err == nil {
				err = a.runMessage(ctx, out, r, msg)
			}
			if err != nil {
				fmt.Fprintln(out, output.Error(err.Error()))
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

func shellMove(ctx context.Context, out io.Writer, r *rig.Rig, args []string) error {
	switch {
	case len(args) == 2 && args[0] == "--degrees":
		deg, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid degrees %q", args[1])
		}
		steps, err := r.MoveDegrees(ctx, deg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Moved %g degrees (%d steps)\n", deg, steps)
		return nil
	case len(args) == 1:
		steps, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		if err := r.Move(ctx, int32(steps)); err != nil {
			return err
		}
		fmt.Fprintf(out, "Moved %d steps\n", steps)
		return nil
	default:
		return fmt.Errorf("usage: move <steps> | move --degrees <deg>")
	}
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "\nAvailable commands:")
	fmt.Fprintln(out, "  help              - Show this help message")
	fmt.Fprintln(out, "  kinds             - List message kinds")
	fmt.Fprintln(out, "  stats             - Show transport state and counters")
	fmt.Fprintln(out, "  move <steps>      - Move the motor")
	fmt.Fprintln(out, "  move --degrees d  - Move the motor by degrees")
	for _, info := range protocol.Kinds() {
		usage := info.Name
		if info.Category != protocol.CategoryGet && info.Descriptor != nil {
			usage += " <json>"
		}
		fmt.Fprintf(out, "  %-17s - %s\n", usage, kindShort(info))
	}
	fmt.Fprintln(out, "  quit/exit/q       - Exit the shell")
	fmt.Fprintln(out)
}
