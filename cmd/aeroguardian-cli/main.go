package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"aeroguardian/internal/services"
	"aeroguardian/internal/ws"
)

const usage = `usage: aeroguardian-cli [flags] <command> [args]

commands:
  scan <image>             upload an image and print the mission report
  mode [upload|live]       print or switch the input mode
  config                   print the pipeline options
  status                   print system status
  login <user> <password>  obtain a token (use it with -token or AEROGUARDIAN_TOKEN)
  notify-test              send a test alert notification

flags:
`

func main() {
	var (
		urlF     = flag.String("url", "http://localhost:8080", "Server base URL")
		tokenF   = flag.String("token", os.Getenv("AEROGUARDIAN_TOKEN"), "Bearer token")
		timeoutF = flag.Int("timeout", 30, "Maximum number of seconds to wait for response")
		outF     = flag.String("out", "", "scan: write the annotated frame to this file")
		jsonF    = flag.Bool("json", false, "Print raw JSON responses")
		dbgF     = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := newClient(*urlF, *tokenF, time.Duration(*timeoutF)*time.Second, *dbgF)
	ctx := context.Background()

	out, err := runCommand(ctx, c, flag.Args(), *outF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if *jsonF {
		m, _ := json.MarshalIndent(out, "", "    ")
		fmt.Println(string(m))
		return
	}
	printResult(out)
}

func runCommand(ctx context.Context, c *client, args []string, outPath string) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scan":
		if len(rest) != 1 {
			return nil, fmt.Errorf("scan: expected one image path")
		}
		if info, err := os.Stat(rest[0]); err == nil {
			fmt.Fprintf(os.Stderr, "uploading %s (%s)\n", rest[0], humanize.Bytes(uint64(info.Size())))
		}
		var report ws.ReportMessage
		if err := c.upload(ctx, rest[0], &report); err != nil {
			return nil, err
		}
		if outPath != "" && report.Frame != "" {
			if err := saveFrame(outPath, report.Frame); err != nil {
				return nil, err
			}
		}
		report.Frame = ""
		return &report, nil

	case "mode":
		var res services.ModeResult
		if len(rest) == 0 {
			return &res, c.call(ctx, "GET", "/api/mode", nil, &res)
		}
		return &res, c.call(ctx, "PUT", "/api/mode", &services.ModePayload{Mode: rest[0]}, &res)

	case "config":
		var res services.PipelineConfig
		return &res, c.call(ctx, "GET", "/api/config", nil, &res)

	case "status":
		var res services.SystemStatus
		return &res, c.call(ctx, "GET", "/api/system/status", nil, &res)

	case "login":
		if len(rest) != 2 {
			return nil, fmt.Errorf("login: expected <user> <password>")
		}
		var res services.LoginResult
		return &res, c.call(ctx, "POST", "/api/auth/login", &services.LoginPayload{Username: rest[0], Password: rest[1]}, &res)

	case "notify-test":
		var res services.NotifyResult
		return &res, c.call(ctx, "POST", "/api/notify/test", nil, &res)
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func printResult(v any) {
	switch r := v.(type) {
	case *ws.ReportMessage:
		fmt.Println(r.LogText)
		fmt.Printf("SURVIVORS: %d  THREAT: %s  RADAR: %s", r.Survivors, r.ThreatLevel, r.RadarState)
		if r.FPS > 0 {
			fmt.Printf("  FPS: %.1f", r.FPS)
		}
		fmt.Println()
	case *services.ModeResult:
		fmt.Printf("%s (%s)\n", r.Mode, r.Label)
	case *services.SystemStatus:
		fmt.Printf("mode=%s detector=%s healthy=%t uptime=%s ws=%d feed=%d\n",
			r.Mode, r.Detector.Name, r.Detector.Healthy, r.Uptime, r.WSClients, r.FeedClients)
		fmt.Printf("live: submitted=%d completed=%d superseded=%d failed=%d\n",
			r.Live.Submitted, r.Live.Completed, r.Live.Superseded, r.Live.Failed)
	case *services.LoginResult:
		fmt.Println(r.Token)
		fmt.Fprintf(os.Stderr, "expires %s\n", humanize.Time(r.ExpiresAt))
	default:
		m, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(strings.TrimSpace(string(m)))
	}
}
