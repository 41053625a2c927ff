package shared

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// openCommand builds the platform command that hands target to the desktop.
func openCommand(ctx context.Context, target string) (*exec.Cmd, error) {
	switch rt := getRuntime(); rt {
	case "darwin":
		return exec.CommandContext(ctx, "open", target), nil
	case "linux":
		return exec.CommandContext(ctx, "xdg-open", target), nil
	case "windows":
		return exec.CommandContext(ctx, "cmd", "/c", "start", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}

// OpenURL opens target with the system handler: the browser for web links, the provider
// app for "spotify:" and "music:" links.
func OpenURL(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	switch u.Scheme {
	case "http", "https", "spotify", "music":
	default:
		return fmt.Errorf("%w: unsupported link scheme %q", ErrInvalidArgument, u.Scheme)
	}

	cmd, err := openCommand(ctx, target)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", u.Scheme, err)
	}
	return nil
}
