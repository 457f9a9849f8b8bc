package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

const defaultStepTimeout = 10 * time.Minute

// StepExecutor runs step commands inside one job's isolated working
// directory and reads files produced there. One executor instance exists
// per job; jobs never share a filesystem except through the cache and
// artifact stores.
type StepExecutor interface {
	RunCommand(
		ctx context.Context,
		script string,
		env []string,
		timeout time.Duration,
		outputCh chan<- string,
	) error
	ReadFile(path string) ([]byte, error)
	Workdir() string
	Close() error
}

// ExecutorFactory creates the per-job executor with its working
// directory prepared.
type ExecutorFactory interface {
	NewExecutor(jobDir string) (StepExecutor, error)
}

type LocalExecutorFactory struct {
	Root string
}

func (f *LocalExecutorFactory) NewExecutor(jobDir string) (StepExecutor, error) {
	workdir := filepath.Join(f.Root, jobDir)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, err
	}
	return &LocalExecutor{Dir: workdir}, nil
}

// LocalExecutor runs steps on the controller machine.
type LocalExecutor struct {
	Dir string
}

func (e *LocalExecutor) Workdir() string {
	return e.Dir
}

func (e *LocalExecutor) RunCommand(
	ctx context.Context,
	script string,
	env []string,
	timeout time.Duration,
	outputCh chan<- string,
) error {
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	cmd := exec.Command("sh", "-c", script)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	doneCh := make(chan error, 1)
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	go func() {
		defer cancel()
		if err := cmd.Start(); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err starting command %s", script), err)
			return
		}

		var wg sync.WaitGroup
		wg.Go(func() {
			scanner := bufio.NewScanner(stdout)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})
		wg.Go(func() {
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})
		wg.Wait()

		if err := cmd.Wait(); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err waiting for command to finish %s", script), err)
			return
		}

		doneCh <- nil
	}()

	select {
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			_ = cmd.Process.Signal(os.Interrupt)
			message := "step execution cancelled by user"
			outputCh <- message + "\n"
			return RunCancelError{Message: message}
		}
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			_ = cmd.Process.Kill()
			err := fmt.Errorf(
				"step execution timed out in %d seconds, script: '%s'",
				int(timeout.Seconds()),
				script,
			)
			outputCh <- err.Error() + "\n"
			return err
		}
		// the worker finished and released the timeout before the select ran
		return <-doneCh
	case err := <-doneCh:
		return err
	}
}

func (e *LocalExecutor) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(e.Dir, path))
}

func (e *LocalExecutor) Close() error {
	return nil
}
