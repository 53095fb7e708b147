package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/bandlink/internal/api"
	"github.com/banshee-data/bandlink/internal/httputil"
)

const ctlUsage = `Usage: bandlink ctl [-server url] <command> [args]

Commands:
  status             Show connection status, mode and demo progress
  connect            Start connecting to the band
  disconnect         End the live session
  demo start|stop    Start or stop the demo source
  cadence <ms>       Set the demo interval in milliseconds
  send <text>        Write text to the band verbatim (\r and \n are unescaped)
  version            Show the server's build
`

// runCtl runs one ctl command against a running server. hc may be nil.
func runCtl(args []string, out io.Writer, hc httputil.HTTPClient) error {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(out)
	server := fs.String("server", "http://localhost:8080", "Base URL of the bandlink server")
	timeout := fs.Duration("timeout", httputil.DefaultTimeout, "Request timeout")
	fs.Usage = func() { fmt.Fprint(out, ctlUsage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("missing ctl command")
	}

	c := api.NewClient(*server, hc)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		result interface{}
		err    error
	)
	switch cmd := rest[0]; cmd {
	case "status":
		result, err = c.Status(ctx)
	case "connect":
		result, err = c.Connect(ctx)
	case "disconnect":
		result, err = c.Disconnect(ctx)
	case "demo":
		if len(rest) < 2 {
			return fmt.Errorf("demo requires start or stop")
		}
		switch rest[1] {
		case "start":
			result, err = c.StartDemo(ctx)
		case "stop":
			result, err = c.StopDemo(ctx)
		default:
			return fmt.Errorf("unknown demo action %q", rest[1])
		}
	case "cadence":
		if len(rest) < 2 {
			return fmt.Errorf("cadence requires an interval in milliseconds")
		}
		ms, convErr := strconv.Atoi(rest[1])
		if convErr != nil || ms <= 0 {
			return fmt.Errorf("invalid cadence %q", rest[1])
		}
		result, err = c.SetDemoCadence(ctx, time.Duration(ms)*time.Millisecond)
	case "send":
		if len(rest) < 2 {
			return fmt.Errorf("send requires text")
		}
		text := unescapeCommand(strings.Join(rest[1:], " "))
		if err = c.SendCommand(ctx, text); err == nil {
			result = map[string]string{"sent": text}
		}
	case "version":
		result, err = c.Version(ctx)
	case "help":
		fs.Usage()
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown ctl command %q", cmd)
	}
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(b))
	return nil
}

// unescapeCommand turns literal \r and \n typed on a shell into the control
// characters the band expects as terminators.
func unescapeCommand(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(s)
}
