package models

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// EphemeralSpec describes one foreground tunnel run.
type EphemeralSpec struct {
	TunnelID        string
	CredentialsPath string
	Hostname        string
	Target          string
}

// RunEphemeral supervises a foreground cloudflared process for an
// ephemeral tunnel, streaming its relevant log output to stdout until
// the process exits or ctx is canceled. The transient ingress artifact
// is written on entry and removed on exit; while it exists it marks
// the tunnel as live for reconciliation.
func RunEphemeral(ctx context.Context, spec EphemeralSpec, out *os.File) error {
	configPath, err := WriteEphemeralConfig(spec.TunnelID, spec.CredentialsPath, spec.Hostname, spec.Target)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("failed to remove tunnel config")
		}
	}()

	cmd := exec.CommandContext(ctx, FindCloudflared(), "tunnel", "--config", configPath, "run")
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to capture cloudflared output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start cloudflared: %w", err)
	}

	if out != nil {
		fmt.Fprintf(out, "Tunnel running: https://%s -> %s\n", spec.Hostname, NormalizeTarget(spec.Target))
		fmt.Fprintln(out, strings.Repeat("-", 50))
	}

	// cloudflared logs to stderr
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if out != nil && shouldDisplayLog(line) {
			fmt.Fprintln(out, line)
		}
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		// Interrupted by the user, a normal shutdown
		return nil
	}
	if err != nil {
		return fmt.Errorf("cloudflared exited: %w", err)
	}
	return nil
}

// shouldDisplayLog keeps connection status and problems, drops the
// noisy startup dump.
func shouldDisplayLog(line string) bool {
	return strings.Contains(line, "INF") ||
		strings.Contains(line, "ERR") ||
		strings.Contains(line, "WRN") ||
		strings.Contains(line, "connection") ||
		strings.Contains(line, "registered") ||
		strings.Contains(line, "Tunnel")
}
