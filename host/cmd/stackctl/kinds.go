package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stackctl/host/output"
	"stackctl/host/rig"
	"stackctl/protocol"
)

// kindCommands returns one subcommand per registered message kind
func kindCommands(a *app) []*cobra.Command {
	kinds := protocol.Kinds()
	cmds := make([]*cobra.Command, 0, len(kinds))
	for _, info := range kinds {
		cmds = append(cmds, newKindCmd(a, info))
	}
	return cmds
}

func newKindCmd(a *app, info protocol.KindInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   info.Name,
		Short: kindShort(info),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildMessage(info, args)
			if err != nil {
				return err
			}

			r, stop, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := interruptible(cmd)
			defer cancel()
			return a.runMessage(ctx, cmd.OutOrStdout(), r, msg)
		},
	}

	if info.Category != protocol.CategoryGet && info.Descriptor != nil {
		cmd.Use = info.Name + " <json>"
		cmd.Args = cobra.ExactArgs(1)
		cmd.Long = fmt.Sprintf("%s\n\nThe argument is JSON representing the %s payload, for example:\n  %s",
			kindShort(info), info.Descriptor.Name, defaultPayloadJSON(info.Kind))
	}
	return cmd
}

func kindShort(info protocol.KindInfo) string {
	switch info.Category {
	case protocol.CategoryGet:
		return fmt.Sprintf("Request %s from the rig and print the reply", strings.TrimPrefix(info.Name, "get_"))
	case protocol.CategorySet:
		return fmt.Sprintf("Send %s to the rig", strings.TrimPrefix(info.Name, "set_"))
	default:
		return fmt.Sprintf("Trigger the %s action", strings.TrimPrefix(info.Name, "action_"))
	}
}

// basePayload is the payload a JSON argument is decoded onto
func basePayload(kind protocol.MessageKind) protocol.Payload {
	if kind == protocol.SetConfig {
		return protocol.DefaultConfig()
	}
	return protocol.NewPayload(kind)
}

func defaultPayloadJSON(kind protocol.MessageKind) string {
	b, err := json.Marshal(basePayload(kind))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// parsePayload strictly decodes a JSON argument for kind
func parsePayload(kind protocol.MessageKind, arg string) (protocol.Payload, error) {
	p := basePayload(kind)
	if p == nil {
		return nil, fmt.Errorf("%s takes no payload", kind)
	}

	dec := json.NewDecoder(strings.NewReader(arg))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid %s payload: trailing data", kind)
	}
	return p, nil
}

// buildMessage turns command arguments into a message for kind
func buildMessage(info protocol.KindInfo, args []string) (protocol.Message, error) {
	if info.Category == protocol.CategoryGet || info.Descriptor == nil {
		if len(args) > 0 {
			return protocol.Message{}, fmt.Errorf("%s takes no arguments", info.Name)
		}
		return protocol.NewMessage(info.Kind), nil
	}
	if len(args) != 1 {
		return protocol.Message{}, fmt.Errorf("%s needs one JSON argument, e.g. %s", info.Name, defaultPayloadJSON(info.Kind))
	}
	p, err := parsePayload(info.Kind, args[0])
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{Kind: info.Kind, Payload: p}, nil
}

// runMessage executes one protocol command: get_ kinds wait for and print
// the reply, other kinds are written and flushed
func (a *app) runMessage(ctx context.Context, out io.Writer, r *rig.Rig, msg protocol.Message) error {
	if msg.Kind.Category() == protocol.CategoryGet {
		reply, err := r.Request(ctx, msg)
		if err != nil {
			return err
		}
		fmt.Fprint(out, a.formatter.Format(reply))
		return nil
	}

	if a.cfg.Output == output.FormatTable {
		fmt.Fprintf(out, "Sending %s\n", msg)
	} else {
		fmt.Fprint(out, a.formatter.Format(msg))
	}

	if msg.Kind == protocol.SetConfig {
		return r.SetConfig(ctx, msg.Payload.(*protocol.Config))
	}
	return r.Post(ctx, msg)
}

func newKindsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the message kinds of the device protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.print(cmd, output.KindRows())
			return nil
		},
	}
}
