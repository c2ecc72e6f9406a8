package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/proxi-pad/proxi/apiclient"
	"github.com/proxi-pad/proxi/apitypes"
)

// Remote addresses a running bridge's control API.
type Remote struct {
	Addr    string        `help:"Control API address of the running bridge" default:"localhost:3243" env:"PROXI_API_ADDR"`
	Timeout time.Duration `help:"Request timeout" default:"3s"`
}

func (r Remote) transport() *apiclient.Transport {
	return apiclient.NewTransportWithConfig(r.Addr, &apiclient.Config{
		DialTimeout:  r.Timeout,
		ReadTimeout:  r.Timeout,
		WriteTimeout: r.Timeout,
	})
}

// Status prints the state of a running bridge.
type Status struct {
	Remote `embed:""`
	JSON   bool `help:"Print the raw JSON status"`
}

func (c *Status) Run(logger *slog.Logger) error {
	return c.print(context.Background(), os.Stdout, logger)
}

func (c *Status) print(ctx context.Context, w io.Writer, logger *slog.Logger) error {
	line, err := c.transport().DoCtx(ctx, "status", nil, nil)
	if err != nil {
		return fmt.Errorf("is 'proxi run' active? %w", err)
	}
	st, err := apiclient.Parse[apitypes.StatusResponse](line)
	if err != nil {
		return err
	}
	logger.Debug("Status received", "addr", c.Addr)
	if c.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return writeStatus(w, st)
}

func writeStatus(w io.Writer, st *apitypes.StatusResponse) error {
	buttons := strings.Join(st.Buttons, " ")
	if buttons == "" {
		buttons = "-"
	}
	charging := ""
	if st.Charging {
		charging = " (charging)"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", st.State)
	fmt.Fprintf(tw, "Device:\t%s\n", st.Device)
	fmt.Fprintf(tw, "Sink:\t%s\n", st.Sink)
	fmt.Fprintf(tw, "Battery:\t%d/8%s\n", st.Battery, charging)
	fmt.Fprintf(tw, "Reports:\t%d (dropped %d)\n", st.Reports, st.Dropped)
	fmt.Fprintf(tw, "Updates:\t%d\n", st.Updates)
	fmt.Fprintf(tw, "Reconnects:\t%d\n", st.Reconnects)
	fmt.Fprintf(tw, "Buttons:\t%s\n", buttons)
	fmt.Fprintf(tw, "Sticks:\tL(%d,%d) R(%d,%d)\n", st.LeftStick.X, st.LeftStick.Y, st.RightStick.X, st.RightStick.Y)
	fmt.Fprintf(tw, "Triggers:\tL%d R%d\n", st.LeftTrigger, st.RightTrigger)
	if st.RumbleLarge != 0 || st.RumbleSmall != 0 {
		fmt.Fprintf(tw, "Rumble:\t%d/%d\n", st.RumbleLarge, st.RumbleSmall)
	}
	if st.LastError != "" {
		fmt.Fprintf(tw, "Last error:\t%s\n", st.LastError)
	}
	return tw.Flush()
}

// Lights reads or sets the player LEDs of a running bridge.
type Lights struct {
	Remote `embed:""`
	Bits   string `arg:"" optional:"" help:"LED bits, e.g. 0b0001 (player 1) or 0x0f (all on); low nibble lit, high nibble flashing"`
}

func (c *Lights) Run(logger *slog.Logger) error {
	return c.apply(context.Background(), os.Stdout, logger)
}

func (c *Lights) apply(ctx context.Context, w io.Writer, logger *slog.Logger) error {
	var payload any
	if c.Bits != "" {
		payload = c.Bits
	}
	line, err := c.transport().DoCtx(ctx, "leds", payload, nil)
	if err != nil {
		return fmt.Errorf("is 'proxi run' active? %w", err)
	}
	res, err := apiclient.Parse[apitypes.LEDsResponse](line)
	if err != nil {
		return err
	}
	logger.Debug("Lights updated", "addr", c.Addr)
	_, err = fmt.Fprintf(w, "%08b\n", res.Lights)
	return err
}
