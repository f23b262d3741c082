// ABOUTME: Interactive "ward-gateway init" that writes a starter config file
// ABOUTME: Generates a random HMAC secret for locally signed tokens

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// initAnswers holds everything the init prompts collect.
type initAnswers struct {
	HTTPAddr   string
	GRPCAddr   string
	PublicURL  string
	DBPath     string
	HMACSecret string
	Issuer     string

	IntrospectionURL string
	ClientID         string
	ClientSecret     string

	Tailscale  bool
	TSHostname string
	TSAuthKey  string
	TSFunnel   bool

	LogLevel  string
	LogFormat string
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	ask := func(question, defaultVal string) string {
		return prompt(reader, out, question, defaultVal)
	}
	yes := func(question string) bool {
		v := strings.ToLower(ask(question, "no"))
		return v == "yes" || v == "y"
	}

	fmt.Fprintln(out, "ward-gateway configuration setup")
	fmt.Fprintln(out, "================================")
	fmt.Fprintln(out)

	outputFile := ask("Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes("File exists. Overwrite?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	var a initAnswers
	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = ask("HTTP address", "localhost:8080")
	a.GRPCAddr = ask("gRPC health address (empty to disable)", "")
	a.PublicURL = ask("Public URL", "http://"+a.HTTPAddr)

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.DBPath = ask("SQLite database path", filepath.Join(getDataPath(), "ward.db"))

	fmt.Fprintln(out, "\n--- Auth Configuration ---")
	a.HMACSecret = secret
	a.Issuer = ask("Token issuer", a.PublicURL)
	if yes("Accept opaque tokens via introspection?") {
		a.IntrospectionURL = ask("Introspection URL", "https://oauth2.googleapis.com/tokeninfo")
		a.ClientID = ask("OAuth client id", "")
		a.ClientSecret = ask("OAuth client secret", "")
	}

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.Tailscale = yes("Enable Tailscale?")
	if a.Tailscale {
		a.TSHostname = ask("Tailscale hostname", "ward")
		a.TSAuthKey = ask("Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSFunnel = yes("Enable Funnel (public HTTPS)?")
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = ask("Log level (debug/info/warn/error)", "info")
	a.LogFormat = ask("Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  ward-admin account create --email you@example.com")
	fmt.Fprintln(out, "  ward-admin token mint --account <id>")
	fmt.Fprintln(out, "  ward-gateway serve")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// renderConfig produces the YAML config for the collected answers.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&b, format, args...) }

	w("# ward-gateway configuration\n")
	w("# Generated by ward-gateway init\n\n")

	w("server:\n")
	w("  http_addr: %q\n", a.HTTPAddr)
	if a.GRPCAddr != "" {
		w("  grpc_addr: %q\n", a.GRPCAddr)
	}
	w("  public_url: %q\n\n", a.PublicURL)

	w("database:\n")
	w("  driver: \"sqlite\"\n")
	w("  path: %q\n\n", a.DBPath)

	w("auth:\n")
	w("  issuer: %q\n", a.Issuer)
	w("  signed:\n")
	w("    issuer: %q\n", a.Issuer)
	w("    hmac_secret: %q\n", a.HMACSecret)
	if a.IntrospectionURL != "" {
		style := "rfc7662"
		if strings.Contains(a.IntrospectionURL, "tokeninfo") {
			style = "tokeninfo"
		}
		w("  introspection:\n")
		w("    url: %q\n", a.IntrospectionURL)
		w("    style: %q\n", style)
		w("    client_id: %q\n", a.ClientID)
		if a.ClientSecret != "" {
			w("    client_secret: %q\n", a.ClientSecret)
		}
	}
	w("\n")

	w("tailscale:\n")
	w("  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		w("  hostname: %q\n", a.TSHostname)
		if a.TSAuthKey != "" {
			w("  auth_key: %q\n", a.TSAuthKey)
		}
		w("  funnel: %t\n", a.TSFunnel)
	}
	w("\n")

	w("session:\n")
	w("  idle_ttl: \"30m\"\n")
	w("  call_timeout: \"30s\"\n\n")

	w("links:\n")
	w("  fetch_timeout: \"5s\"\n\n")

	w("logging:\n")
	w("  level: %q\n", a.LogLevel)
	w("  format: %q\n", a.LogFormat)
	return b.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// EOF: take the default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
