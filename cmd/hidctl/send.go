package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/softhid/host"
	"github.com/ardnew/softhid/pkg"
)

// parseRequest parses an opcode and an optional hex payload.
func parseRequest(args []string) (uint8, []byte, error) {
	op, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: opcode %q", pkg.ErrInvalidParameter, args[0])
	}
	var payload []byte
	if len(args) > 1 {
		s := strings.NewReplacer(" ", "", ":", "").Replace(strings.Join(args[1:], ""))
		if payload, err = hex.DecodeString(s); err != nil {
			return 0, nil, fmt.Errorf("%w: payload: %v", pkg.ErrInvalidParameter, err)
		}
	}
	return uint8(op), payload, nil
}

// report prints the outcome of m.
func report(cmd *cobra.Command, m *host.Message, resp host.Response, err error) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:      %s\n", m.ID)
	fmt.Fprintf(out, "status:  %s\n", m.Status())
	fmt.Fprintf(out, "sent:    %d bytes\n", m.Sent())
	if err != nil {
		return fmt.Errorf("opcode 0x%02x: %w", m.Opcode, err)
	}
	if m.ExpectResponse {
		fmt.Fprintf(out, "code:    0x%02x\n", resp.Code)
		fmt.Fprintf(out, "payload: %s\n", hex.EncodeToString(resp.Payload))
	}
	return nil
}

// exchange submits m and waits for it, cancelling it on timeout.
func (a *app) exchange(ctx context.Context, s *session, m *host.Message) (host.Response, error) {
	if err := s.host.Submit(m); err != nil {
		return host.Response{}, err
	}
	wctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := m.Wait(wctx)
	if wctx.Err() != nil && !m.IsDone() {
		pkg.LogWarn(pkg.ComponentCLI, "response timed out, cancelling", "id", m.ID)
		s.host.Cancel(m)
		resp, err = m.Wait(ctx)
	}
	return resp, err
}

// drainEvents prints device events received so far.
func drainEvents(cmd *cobra.Command, s *session) {
	for {
		select {
		case ev := <-s.events:
			fmt.Fprintln(cmd.OutOrStdout(), ev)
		default:
			return
		}
	}
}

func newSendCmd(a *app) *cobra.Command {
	var noResponse bool

	cmd := &cobra.Command{
		Use:   "send <opcode> [hex-payload]",
		Short: "Send a request and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opcode, payload, err := parseRequest(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer s.host.Quit()

			if _, err := a.open(ctx, s); err != nil {
				return err
			}
			m := host.NewMessage(opcode, payload, !noResponse)
			resp, err := a.exchange(ctx, s, m)
			drainEvents(cmd, s)
			return report(cmd, m, resp, err)
		},
	}
	cmd.Flags().BoolVar(&noResponse, "no-response", false, "do not wait for a response")
	return cmd
}

func newInterruptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <opcode> [hex-payload]",
		Short: "Send an interrupt ahead of all queued requests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opcode, payload, err := parseRequest(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer s.host.Quit()

			if _, err := a.open(ctx, s); err != nil {
				return err
			}
			m := host.NewInterrupt(opcode, payload)
			resp, err := a.exchange(ctx, s, m)
			return report(cmd, m, resp, err)
		},
	}
}

func newEmulateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "emulate <opcode> [hex-payload]",
		Short: "Send a request to the built-in echo emulator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opcode, payload, err := parseRequest(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.start(ctx, host.Echo)
			if err != nil {
				return err
			}
			defer s.host.Quit()

			if !s.host.BeginEmulation() {
				return fmt.Errorf("%w: emulation refused", pkg.ErrInvalidState)
			}
			defer s.host.EndEmulation()

			m := host.NewMessage(opcode, payload, true)
			resp, err := a.exchange(ctx, s, m)
			return report(cmd, m, resp, err)
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the first present variant and report it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer s.host.Quit()

			v, err := a.open(ctx, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s\n", v)
			return nil
		},
	}
}
