package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"hookrun/internal/store"
)

// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
const terminationGracePeriod = 5 * time.Second

// LaunchRequest describes the action behind one verified delivery.
type LaunchRequest struct {
	Endpoint    string
	Script      string
	Interpreter string
	Timeout     time.Duration
	Payload     []byte
}

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks hookrun/internal/runner DeliveryRecorder

// DeliveryRecorder defines the delivery-log operations the runner needs.
type DeliveryRecorder interface {
	RecordLaunch(ctx context.Context, endpoint, script string) (string, error)
	Finalize(ctx context.Context, id string, status store.Status, exitCode *int, lastError, stderr *string) error
}

// Runner launches delivery actions as subprocesses, fire-and-forget. Launch
// returns as soon as the process has started; a goroutine waits for it to
// exit and finalizes the delivery record.
type Runner struct {
	recorder DeliveryRecorder
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a new Runner.
func New(recorder DeliveryRecorder, logger *slog.Logger) *Runner {
	return &Runner{
		recorder: recorder,
		logger:   logger,
	}
}

// Launch records the delivery, starts the script, and returns the delivery ID.
// It does not wait for the script to finish; only a failure to start is
// reported to the caller.
func (r *Runner) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	id, err := r.recorder.RecordLaunch(ctx, req.Endpoint, req.Script)
	if err != nil {
		return "", fmt.Errorf("record launch: %w", err)
	}

	// Don't use CommandContext: the request context ends with the HTTP
	// response, while the action outlives it. Timeout is enforced below.
	var cmd *exec.Cmd
	if req.Interpreter != "" {
		cmd = exec.Command(req.Interpreter, req.Script)
	} else {
		cmd = exec.Command(req.Script)
	}

	cmd.Stdin = bytes.NewReader(req.Payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"HOOKRUN_DELIVERY_ID="+id,
		"HOOKRUN_ENDPOINT="+req.Endpoint,
	)

	// Own process group so timeout signals reach the script's children too.
	// A killed shell otherwise orphans its subprocesses, and an orphan holding
	// the stderr pipe would block Wait indefinitely; WaitDelay bounds that.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = terminationGracePeriod

	if err := cmd.Start(); err != nil {
		errMsg := fmt.Sprintf("start process: %v", err)
		if ferr := r.recorder.Finalize(context.WithoutCancel(ctx), id, store.StatusFailed, nil, &errMsg, nil); ferr != nil {
			r.logger.Error("failed to finalize delivery", "delivery_id", id, "error", ferr)
		}
		return "", fmt.Errorf("start process: %w", err)
	}

	r.logger.Debug("action started", "delivery_id", id, "script", req.Script, "pid", cmd.Process.Pid)

	r.wg.Add(1)
	go r.await(id, req, cmd, &stderr)

	return id, nil
}

// Wait blocks until all in-flight actions have been finalized.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// await waits for the action to exit, enforcing the timeout with SIGTERM and
// then SIGKILL after a grace period, and finalizes the delivery record.
func (r *Runner) await(id string, req LaunchRequest, cmd *exec.Cmd, stderr *bytes.Buffer) {
	defer r.wg.Done()

	logger := r.logger.With("delivery_id", id, "script", req.Script)
	ctx := context.Background()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var err error
	timedOut := false

	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()

		select {
		case err = <-waitErr:
		case <-timer.C:
			timedOut = true
			logger.Warn("action timed out, sending SIGTERM", "timeout", req.Timeout)
			if serr := signalGroup(cmd, syscall.SIGTERM); serr != nil {
				logger.Error("failed to send SIGTERM", "error", serr)
			}

			grace := time.NewTimer(terminationGracePeriod)
			defer grace.Stop()

			select {
			case err = <-waitErr:
				logger.Info("action exited after SIGTERM")
			case <-grace.C:
				logger.Warn("action did not exit after SIGTERM, sending SIGKILL")
				if kerr := signalGroup(cmd, syscall.SIGKILL); kerr != nil {
					logger.Error("failed to send SIGKILL", "error", kerr)
				}
				err = <-waitErr
			}
		}
	} else {
		err = <-waitErr
	}

	// WaitDelay forced the pipes closed after a clean exit; the action itself
	// succeeded.
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}

	stderrStr := stderr.String()

	switch {
	case timedOut:
		errMsg := fmt.Sprintf("action timed out after %v", req.Timeout)
		logger.Warn(errMsg)
		r.finalize(ctx, id, store.StatusTimedOut, nil, &errMsg, &stderrStr)

	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			errMsg := fmt.Sprintf("action exited with status %d", code)
			logger.Warn("action exited with non-zero status", "exit_code", code)
			r.finalize(ctx, id, store.StatusFailed, &code, &errMsg, &stderrStr)
		} else {
			errMsg := fmt.Sprintf("wait for process: %v", err)
			logger.Error(errMsg)
			r.finalize(ctx, id, store.StatusFailed, nil, &errMsg, &stderrStr)
		}

	default:
		code := 0
		logger.Info("action completed")
		r.finalize(ctx, id, store.StatusSucceeded, &code, nil, &stderrStr)
	}
}

func (r *Runner) finalize(ctx context.Context, id string, status store.Status, exitCode *int, lastError, stderr *string) {
	if err := r.recorder.Finalize(ctx, id, status, exitCode, lastError, stderr); err != nil {
		r.logger.Error("failed to finalize delivery", "delivery_id", id, "error", err)
	}
}

// signalGroup signals the action's whole process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
