// Copyright 2024 The Retrace Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

package ptracer

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"retrace.dev/retrace/pkg/abi/linux"
)

// Start launches argv[0] with the given arguments as a traced child and
// waits for the post-exec trap. On return the thread is stopped and ready
// for its first resume.
//
// Precondition: the calling goroutine must be locked to its OS thread for
// the lifetime of the returned Thread.
func Start(argv []string) (*Thread, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	t := New(cmd.Process.Pid)
	if err := t.Wait(); err != nil {
		return nil, err
	}
	if sig := t.StopSignal(); sig != linux.SIGTRAP {
		return nil, fmt.Errorf("wait failed: expected SIGTRAP, got %v", sig)
	}

	// The tracee must not outlive the recorder: a trace cut short by a
	// dying tracer is unreplayable anyway.
	if err := t.SetOptions(unix.PTRACE_O_EXITKILL); err != nil {
		return nil, err
	}
	return t, nil
}
