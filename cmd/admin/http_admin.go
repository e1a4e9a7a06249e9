package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	adminHTTPCmd("state", http.MethodGet, "/admin/v1/state", 5*time.Second, args)
}

// snapshotCmd asks the server for a snapshot at the end of its next tick.
func snapshotCmd(args []string) {
	adminHTTPCmd("snapshot", http.MethodPost, "/admin/v1/snapshot", 10*time.Second, args)
}

func adminHTTPCmd(name, method, path string, timeout time.Duration, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	body, err := adminRequest(&http.Client{Timeout: timeout}, method, *baseURL, path)
	if body != "" {
		fmt.Println(body)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, name+":", err)
		os.Exit(1)
	}
}

// adminRequest returns the response body. A non-2xx status is an error, but
// the body is still returned since the server explains failures in it.
func adminRequest(cl *http.Client, method, baseURL, path string) (string, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	body := strings.TrimSpace(string(b))
	if resp.StatusCode/100 != 2 {
		return body, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}
