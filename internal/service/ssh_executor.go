package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/haatos/securegate/internal/store"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHExecutorFactory prepares job working directories on a remote agent.
// Step commands run over SSH sessions; files produced by a job (reports,
// artifacts) are fetched back over SFTP.
type SSHExecutorFactory struct {
	Agent *store.Agent
}

func (f *SSHExecutorFactory) NewExecutor(jobDir string) (StepExecutor, error) {
	client, err := dialAgent(f.Agent)
	if err != nil {
		return nil, err
	}

	workdir := path.Join(f.Agent.Workspace, jobDir)
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	defer sess.Close()
	if err := sess.Run(fmt.Sprintf("mkdir -p %s", workdir)); err != nil {
		client.Close()
		return nil, errors.Join(fmt.Errorf("err creating workdir %s on agent", workdir), err)
	}

	return &SSHExecutor{client: client, workdir: workdir}, nil
}

func dialAgent(agent *store.Agent) (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(agent.SSHPrivateKey)
	if err != nil {
		return nil, errors.Join(errors.New("err parsing ssh private key"), err)
	}
	cc := &ssh.ClientConfig{
		User:            agent.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	hostname := agent.Hostname
	split := strings.Split(hostname, ":")
	if len(split) == 1 {
		hostname += ":22"
	}
	return ssh.Dial("tcp", hostname, cc)
}

type SSHExecutor struct {
	client  *ssh.Client
	workdir string
	mu      sync.Mutex
}

func (e *SSHExecutor) RunCommand(
	ctx context.Context,
	script string,
	env []string,
	timeout time.Duration,
	outputCh chan<- string,
) error {
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	sess, err := e.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return err
	}

	var exports strings.Builder
	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		fmt.Fprintf(&exports, "export %s=%s && ", name, shellQuote(value))
	}
	cmd := fmt.Sprintf("cd %s && %s%s", e.workdir, exports.String(), script)

	doneCh := make(chan error, 1)
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	go func() {
		defer cancel()
		if err := sess.Start(cmd); err != nil {
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

		if err := sess.Wait(); err != nil {
			wg.Wait()
			doneCh <- errors.Join(fmt.Errorf("err waiting for command to finish %s", script), err)
			return
		}
		wg.Wait()

		doneCh <- nil
	}()

	select {
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			_ = sess.Signal(ssh.SIGINT)
			message := "step execution cancelled by user"
			outputCh <- message + "\n"
			return RunCancelError{Message: message}
		}
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			_ = sess.Signal(ssh.SIGKILL)
			err := fmt.Errorf(
				"step execution timed out in %d seconds, script: '%s'",
				int(timeout.Seconds()),
				script,
			)
			outputCh <- err.Error() + "\n"
			return err
		}
		return <-doneCh
	case err := <-doneCh:
		return err
	}
}

func (e *SSHExecutor) ReadFile(p string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sftpc, err := sftp.NewClient(e.client)
	if err != nil {
		return nil, errors.Join(errors.New("err creating sftp client"), err)
	}
	defer sftpc.Close()

	f, err := sftpc.Open(path.Join(e.workdir, p))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (e *SSHExecutor) Workdir() string {
	return e.workdir
}

func (e *SSHExecutor) Close() error {
	return e.client.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
