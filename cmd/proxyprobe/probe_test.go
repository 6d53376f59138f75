package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/proxyprobe/internal/config"
	"github.com/nao1215/proxyprobe/internal/nettest"
	"github.com/spf13/cobra"
)

const testUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func vlessLink(port int) string {
	return fmt.Sprintf("vless://%s@127.0.0.1:%d?security=none#test", testUUID, port)
}

func ssLink(port int) string {
	// base64("aes-256-gcm:secret")
	return fmt.Sprintf("ss://YWVzLTI1Ni1nY206c2VjcmV0@127.0.0.1:%d#ss", port)
}

// emptyConfig writes an empty configuration file so tests never pick up
// a .proxyprobe from the working or home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type jsonResult struct {
	Link   string `json:"link"`
	Status string `json:"status"`
	PingMS *int64 `json:"ping_ms"`
	Error  string `json:"error"`
}

func TestProbeCmdJSON(t *testing.T) {
	t.Parallel()

	server := nettest.Serve(t, nettest.ReadThenReply(26, 0, nil))
	alive := vlessLink(server.Port())
	dead := vlessLink(nettest.ClosedPort(t))

	stdout, stderr, err := execute(t, "",
		"probe", "--config", emptyConfig(t), "--no-save", "--json", "-t", "2s",
		alive, dead, "http://not-a-proxy.example.com",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}

	var got map[string][]jsonResult
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the vless key, got %v", got)
	}

	byLink := map[string]jsonResult{}
	for _, r := range got["vless"] {
		byLink[r.Link] = r
	}
	if r := byLink[alive]; r.Status != "alive" || r.PingMS == nil {
		t.Errorf("alive candidate = %+v", r)
	}
	if r := byLink[dead]; r.Status != "dead" || r.Error != "ConnectFailed" {
		t.Errorf("dead candidate = %+v", r)
	}

	if !strings.Contains(stderr, "[2/2]") {
		t.Errorf("expected progress lines on stderr, got %q", stderr)
	}
	if strings.Contains(stderr, testUUID) {
		t.Error("stderr must not leak candidate credentials")
	}
}

func TestProbeCmdInputs(t *testing.T) {
	t.Parallel()

	server := nettest.Serve(t, nettest.Hangup())

	dir := t.TempDir()
	listPath := filepath.Join(dir, "links.txt")
	fileContent := strings.Join([]string{
		"",
		ssLink(server.Port()),
		"vmess://eyJhZGQiOiIxMjcuMC4wLjEiLCJwb3J0IjoiMSJ9",
		"   ",
	}, "\n")
	if err := os.WriteFile(listPath, []byte(fileContent), 0o600); err != nil {
		t.Fatal(err)
	}
	reportPath := filepath.Join(dir, "out", "report.json")

	stdout, stderr, err := execute(t, ssLink(server.Port())+"\n",
		"probe", "--config", emptyConfig(t), "--no-save", "--json",
		"-f", listPath, "--stdin", "--disable", "vmess", "-o", reportPath,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}

	// The file holds the JSON report and the terminal still shows the text summary.
	if !strings.Contains(stdout, "PROXYPROBE REPORT") || !strings.Contains(stdout, "SUMMARY") {
		t.Errorf("expected text summary on stdout, got %q", stdout)
	}
	if strings.HasPrefix(strings.TrimSpace(stdout), "{") {
		t.Error("JSON report should go to the file, not stdout")
	}

	info, err := os.Stat(reportPath)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("report permissions = %o, want 600", info.Mode().Perm())
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string][]jsonResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	if _, ok := got["vmess"]; ok {
		t.Error("disabled protocol should not be probed")
	}
	// The same ss link came from the file and from stdin; duplicates collapse.
	if len(got["ss"]) != 1 || got["ss"][0].Status != "alive" {
		t.Errorf("ss results = %+v", got["ss"])
	}
}

func TestProbeCmdErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "no candidates",
			args:    []string{"probe", "--no-save"},
			wantErr: config.ErrNoCandidates,
		},
		{
			name:    "conflicting formats",
			args:    []string{"probe", "--no-save", "--json", "--markdown", "ss://x@h:1"},
			wantErr: config.ErrConflictingReportFormats,
		},
		{
			name:    "invalid concurrency",
			args:    []string{"probe", "--no-save", "-c", "0", "ss://x@h:1"},
			wantErr: config.ErrInvalidConcurrency,
		},
		{
			name:    "upstream and tor",
			args:    []string{"probe", "--no-save", "--upstream", "127.0.0.1:1080", "--tor", "ss://x@h:1"},
			wantErr: config.ErrConflictingUpstream,
		},
		{
			name:    "unknown disabled protocol",
			args:    []string{"probe", "--no-save", "--disable", "wireguard", "ss://x@h:1"},
			wantErr: config.ErrInvalidProtocol,
		},
		{
			name:    "everything filtered",
			args:    []string{"probe", "--no-save", "--disable", "ss", "ss://x@h:1", "no scheme"},
			wantErr: errNoDispatchable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			args := append([]string{}, tt.args[0], "--config", emptyConfig(t))
			args = append(args, tt.args[1:]...)
			if _, _, err := execute(t, "", args...); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("missing explicit config", func(t *testing.T) {
		t.Parallel()

		missing := filepath.Join(t.TempDir(), "missing.yaml")
		_, _, err := execute(t, "", "probe", "--config", missing, "ss://x@h:1")
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("unreachable upstream", func(t *testing.T) {
		t.Parallel()

		upstreamAddr := fmt.Sprintf("127.0.0.1:%d", nettest.ClosedPort(t))
		_, _, err := execute(t, "", "probe", "--config", emptyConfig(t), "--no-save",
			"--upstream", upstreamAddr, "ss://x@h:1")
		if err == nil || !strings.Contains(err.Error(), "upstream proxy check failed") {
			t.Errorf("error = %v, want upstream check failure", err)
		}
	})
}

func TestProbeCmdThroughUpstream(t *testing.T) {
	t.Parallel()

	server := nettest.Serve(t, nettest.ReadThenReply(26, 0, nil))
	relay := nettest.Serve(t, nettest.SOCKS5Relay())

	stdout, stderr, err := execute(t, "",
		"probe", "--config", emptyConfig(t), "--no-save", "--json",
		"--upstream", "socks5://"+relay.Addr().String(),
		vlessLink(server.Port()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}

	var got map[string][]jsonResult
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(got["vless"]) != 1 || got["vless"][0].Status != "alive" {
		t.Errorf("vless results = %+v", got["vless"])
	}
	// One connection for the greeting check, one for the probe.
	if relay.Accepted() != 2 {
		t.Errorf("relay accepted %d connections, want 2", relay.Accepted())
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "concurrency: 7\ntimeout: 3\nresolver: 1.1.1.1\ndisabled: [vmess]\nalive_only: true\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name            string
		args            []string
		wantConcurrency int
		wantTimeout     time.Duration
		wantAliveOnly   bool
		wantSave        bool
	}{
		{
			name:            "file values",
			args:            []string{"--config", configPath},
			wantConcurrency: 7,
			wantTimeout:     3 * time.Second,
			wantAliveOnly:   true,
			wantSave:        true,
		},
		{
			name:            "flags override file",
			args:            []string{"--config", configPath, "-c", "50", "-t", "5s", "--alive-only=false", "--no-save"},
			wantConcurrency: 50,
			wantTimeout:     5 * time.Second,
		},
		{
			name:            "timeout flag in whole seconds",
			args:            []string{"--config", configPath, "-t", "8"},
			wantConcurrency: 7,
			wantTimeout:     8 * time.Second,
			wantAliveOnly:   true,
			wantSave:        true,
		},
		{
			name:            "timeout flag in fractional seconds",
			args:            []string{"--config", configPath, "--timeout", "1.5"},
			wantConcurrency: 7,
			wantTimeout:     1500 * time.Millisecond,
			wantAliveOnly:   true,
			wantSave:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got *testConfig
			cmd := NewProbeCmd()
			cmd.RunE = func(cmd *cobra.Command, args []string) error {
				cfg, err := buildConfig(cmd, args)
				if err != nil {
					return err
				}
				got = &testConfig{cfg.Concurrency, cfg.Timeout, cfg.AliveOnly, cfg.SaveToDB, cfg.Resolver, cfg.Disabled}
				return nil
			}
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got.concurrency != tt.wantConcurrency || got.timeout != tt.wantTimeout {
				t.Errorf("got (%d, %v), want (%d, %v)", got.concurrency, got.timeout, tt.wantConcurrency, tt.wantTimeout)
			}
			if got.aliveOnly != tt.wantAliveOnly || got.save != tt.wantSave {
				t.Errorf("aliveOnly/save = (%v, %v), want (%v, %v)", got.aliveOnly, got.save, tt.wantAliveOnly, tt.wantSave)
			}
			if got.resolver != "1.1.1.1" || len(got.disabled) != 1 || got.disabled[0] != "vmess" {
				t.Errorf("file-only values lost: resolver %q disabled %v", got.resolver, got.disabled)
			}
		})
	}
}

type testConfig struct {
	concurrency int
	timeout     time.Duration
	aliveOnly   bool
	save        bool
	resolver    string
	disabled    []string
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	long := "vmess://" + strings.Repeat("A", 200*1024)
	lines, err := readLines(strings.NewReader("a\r\n\n" + long + "\nb"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("len(lines) = %d, want 4", len(lines))
	}
	if lines[0] != "a" || lines[2] != long || lines[3] != "b" {
		t.Error("lines were not preserved")
	}
}
