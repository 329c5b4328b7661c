package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	daemonConfPath string
	daemonPidFile  string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the daemon detached from the controlling terminal",
	Long:  "Re-exec 'fsald server' as a detached background process in its own session and record its pid in the given pid file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(daemonConfPath, daemonPidFile)
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonConfPath, "conf", "", "path to the YAML config file")
	daemonCmd.Flags().StringVar(&daemonPidFile, "pid-file", "", "path to write the detached process's pid")
	daemonCmd.MarkFlagRequired("conf")
	daemonCmd.MarkFlagRequired("pid-file")
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon re-execs the current binary as "server --conf PATH" detached
// into its own session (syscall.Setsid), the closest Go equivalent of a
// Unix double-fork: the child survives the parent's exit and is no longer
// attached to the invoking terminal. The parent records the child's pid and
// returns immediately rather than blocking on the daemon's lifetime.
func runDaemon(confPath, pidFile string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("fsald: resolve executable path: %w", err)
	}

	child := exec.Command(self, "server", "--conf", confPath)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("fsald: start detached server: %w", err)
	}

	pid := child.Process.Pid
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("fsald: write pid file %s: %w", pidFile, err)
	}

	// Detach fully: let the child outlive this process.
	return child.Process.Release()
}
