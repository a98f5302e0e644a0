package daemon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gallofeliz/hen-backup/internal/config"
	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
	"github.com/gallofeliz/hen-backup/internal/logfields"
	"github.com/gallofeliz/hen-backup/internal/retry"
	"github.com/gallofeliz/hen-backup/internal/tracenode"
)

// callHookWithRetry POSTs (or otherwise methods) an HTTP hook, retrying on
// failure per the configured backoff policy up to hook.Retries attempts.
// Grounded on original_source/daemon.py's `@retry(wait_exponential_multiplier
// =1000, wait_exponential_max=10000, stop_max_attempt_number=hook['retries'])`
// decorator around `_hook`.
func callHookWithRetry(ctx context.Context, hook *config.Hook, logger *slog.Logger, node *tracenode.Node) error {
	method := strings.ToUpper(hook.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := 30 * time.Second
	if hook.Timeout != "" {
		if d, err := config.ParseDuration(hook.Timeout); err == nil {
			timeout = d
		}
	}

	policy := retry.DefaultPolicy()
	maxAttempts := hook.Retries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	client := &http.Client{Timeout: timeout}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(policy.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = callHookOnce(ctx, client, method, hook.URL)
		if lastErr == nil {
			logger.Info("hook call succeeded",
				logfields.Component("daemon"), logfields.Subaction("call_hook"), logfields.Hook(hook.URL),
				logfields.Attempt(attempt), logfields.Status("success"), logfields.Node(node.String()))
			return nil
		}

		logger.Warn("hook call attempt failed",
			logfields.Component("daemon"), logfields.Subaction("call_hook"), logfields.Hook(hook.URL),
			logfields.Attempt(attempt), logfields.Error(lastErr), logfields.Node(node.String()))
	}

	return hberrors.Wrap(lastErr, hberrors.CategoryHook, fmt.Sprintf("hook %s exhausted %d attempt(s)", hook.URL, maxAttempts)).
		Retryable().Build()
}

func callHookOnce(ctx context.Context, client *http.Client, method, url string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("hook returned status %d", resp.StatusCode)
	}
	return nil
}
