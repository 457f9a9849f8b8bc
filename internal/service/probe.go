package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/haatos/securegate/internal/pipeline"
)

// ProbeReadiness waits out the declared initial delay, then polls the URL
// with a bounded number of retries at fixed spacing. Exhausting the
// retries is fatal to the step.
func ProbeReadiness(
	ctx context.Context,
	client *http.Client,
	spec *pipeline.ProbeSpec,
	outputCh chan<- string,
) error {
	if spec.InitialDelaySeconds > 0 {
		outputCh <- fmt.Sprintf(
			"waiting %d seconds before probing %s\n",
			spec.InitialDelaySeconds, spec.URL,
		)
		select {
		case <-time.After(time.Duration(spec.InitialDelaySeconds) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			outputCh <- fmt.Sprintf("probe attempt %d: %v\n", attempt, err)
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			err := fmt.Errorf("probe returned status %d", resp.StatusCode)
			outputCh <- fmt.Sprintf("probe attempt %d: %v\n", attempt, err)
			return err
		}
		outputCh <- fmt.Sprintf("%s is ready\n", spec.URL)
		return nil
	}

	interval := time.Duration(spec.IntervalSeconds) * time.Second
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(spec.Retries))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf(
			"service %s not ready after %d retries: %w",
			spec.URL, spec.Retries, err,
		)
	}
	return nil
}
