// ABOUTME: Admin CLI for inspecting a running warden-gateway
// ABOUTME: Hits the authenticated admin endpoints and pretty-prints the results

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("WARDEN_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8787"
	}
	token := os.Getenv("WARDEN_ADMIN_TOKEN")

	client := &adminClient{baseURL: strings.TrimRight(baseURL, "/"), token: token}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = client.cmdStatus()
	case "security":
		err = client.cmdSecurity()
	case "ratelimit":
		err = client.cmdShow("/admin/ratelimit", "Rate limiter")
	case "auth":
		err = client.cmdShow("/admin/auth", "Auth enforcement")
	case "usage":
		err = client.cmdShow("/admin/usage", "Process usage")
	case "block":
		err = client.cmdBlock(args)
	case "unblock":
		err = client.cmdUnblock(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: warden-admin <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status              Gateway usage summary")
	fmt.Println("  security            Security events and blocked IPs")
	fmt.Println("  ratelimit           Rate limiter counters")
	fmt.Println("  auth                Auth enforcement counters")
	fmt.Println("  usage               Raw process usage stats")
	fmt.Println("  block <ip> [dur]    Temporarily block an IP")
	fmt.Println("  unblock <ip>        Remove a temporary block")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  WARDEN_GATEWAY_URL   Gateway base URL (default http://localhost:8787)")
	fmt.Println("  WARDEN_ADMIN_TOKEN   Bearer token of an admin session")
}

type adminClient struct {
	baseURL string
	token   string
}

func (c *adminClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *adminClient) do(method, path string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: set WARDEN_ADMIN_TOKEN to an admin session token")
	default:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// printKV prints a map's entries sorted by key.
func printKV(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	gray := color.New(color.FgHiBlack)
	for _, k := range keys {
		gray.Printf("  %-24s", k)
		switch v := m[k].(type) {
		case map[string]any:
			fmt.Println()
			for name, val := range v {
				gray.Printf("    %-22s", name)
				fmt.Printf("%v\n", val)
			}
		default:
			fmt.Printf("%v\n", v)
		}
	}
}

func (c *adminClient) cmdShow(path, title string) error {
	var out map[string]any
	if err := c.get(path, &out); err != nil {
		return err
	}
	color.New(color.FgCyan, color.Bold).Println(title)
	printKV(out)
	return nil
}

func (c *adminClient) cmdStatus() error {
	var usage map[string]any
	if err := c.get("/admin/usage", &usage); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("● ")
	fmt.Printf("gateway up %vs, %v goroutines, %v active tasks\n",
		usage["uptime_seconds"], usage["goroutines"], usage["active_tasks"])
	return nil
}

func (c *adminClient) cmdSecurity() error {
	var out struct {
		Events     map[string]any  `json:"events"`
		BlockedIPs map[string]any  `json:"blocked_ips"`
		Recent     []securityEvent `json:"recent"`
	}
	if err := c.get("/admin/security", &out); err != nil {
		return err
	}

	color.New(color.FgCyan, color.Bold).Println("Security events")
	printKV(out.Events)

	if len(out.BlockedIPs) > 0 {
		color.New(color.FgRed, color.Bold).Println("\nBlocked IPs")
		for ip, expiry := range out.BlockedIPs {
			fmt.Printf("  %s until %v\n", ip, expiry)
		}
	}

	if len(out.Recent) > 0 {
		color.New(color.FgCyan, color.Bold).Println("\nRecent")
		for _, evt := range out.Recent {
			printEvent(evt)
		}
	}
	return nil
}

type securityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	SourceIP  string    `json:"sourceIp"`
	UserID    string    `json:"userId"`
}

func printEvent(evt securityEvent) {
	var sev *color.Color
	switch evt.Severity {
	case "critical":
		sev = color.New(color.FgRed, color.Bold)
	case "high":
		sev = color.New(color.FgRed)
	case "medium":
		sev = color.New(color.FgYellow)
	default:
		sev = color.New(color.FgHiBlack)
	}

	fmt.Printf("  %s ", evt.Timestamp.Format("15:04:05"))
	sev.Printf("%-8s ", evt.Severity)
	fmt.Printf("%-22s", evt.Type)
	if evt.SourceIP != "" {
		fmt.Printf(" ip=%s", evt.SourceIP)
	}
	if evt.UserID != "" {
		fmt.Printf(" user=%s", evt.UserID)
	}
	fmt.Println()
}

func (c *adminClient) cmdBlock(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: warden-admin block <ip> [duration]")
	}
	payload := map[string]string{"ip": args[0]}
	if len(args) > 1 {
		payload["duration"] = args[1]
	}
	data, _ := json.Marshal(payload)

	if err := c.do(http.MethodPost, "/admin/block-ip", strings.NewReader(string(data)), nil); err != nil {
		return err
	}
	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("blocked %s\n", args[0])
	return nil
}

func (c *adminClient) cmdUnblock(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: warden-admin unblock <ip>")
	}
	data, _ := json.Marshal(map[string]string{"ip": args[0]})

	var out struct {
		Found bool `json:"found"`
	}
	if err := c.do(http.MethodPost, "/admin/unblock-ip", strings.NewReader(string(data)), &out); err != nil {
		return err
	}
	if !out.Found {
		color.New(color.FgYellow).Print("! ")
		fmt.Printf("%s was not blocked\n", args[0])
		return nil
	}
	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("unblocked %s\n", args[0])
	return nil
}
