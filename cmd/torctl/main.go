// Command torctl is a small CLI over package runtime, exposing start,
// stop and status subcommands for a managed tor process. Grounded on the teacher's cmd/sandboxed-tor-browser entry
// point in spirit (a thin wiring layer over the daemon/control logic),
// rebuilt with spf13/cobra instead of the teacher's GTK launcher since
// this is a headless operator tool rather than a desktop app.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/torsvc/tor-runtime/config"
	"github.com/torsvc/tor-runtime/platform"
	"github.com/torsvc/tor-runtime/runtime"
)

var (
	torPath  string
	workDir  string
	cacheDir string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "torctl",
		Short: "Start, stop, and inspect a managed tor process",
	}
	root.PersistentFlags().StringVar(&torPath, "tor-path", "/usr/bin/tor", "path to the tor binary")
	root.PersistentFlags().StringVar(&workDir, "work-dir", "", "directory for torrc, the control port file, and unix sockets")
	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "tor's DataDirectory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")

	root.AddCommand(newStartCmd(), newStopCmd(), newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// resolveDirs fills in unset --work-dir/--cache-dir from the XDG base
// directories, per SPEC_FULL.md §4.3 startup step 1 ("env resolution").
func resolveDirs() {
	if workDir == "" {
		workDir = platform.DefaultWorkDir("torctl")
	}
	if cacheDir == "" {
		cacheDir = platform.DefaultCacheDir("torctl")
	}
}

func buildRuntime(log *logrus.Logger) *runtime.Runtime {
	return runtime.New(runtime.Options{
		TorPath:    torPath,
		WorkDir:    workDir,
		CacheDir:   cacheDir,
		Spawner:    &platform.ExecSpawner{},
		Connector:  &platform.NetConnector{},
		FileSystem: platform.OsFileSystem{},
		Executor:   platform.NewDefaultExecutor(4),
		Log:        log,
		Builder:    config.NewBuilder(),
	})
}

func newStartCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start tor and wait for bootstrap to complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolveDirs()
			log := newLogger()
			rt := buildRuntime(log)
			defer rt.Close()

			rt.Observe(runtime.ObserverFunc(func(e runtime.Event) {
				log.WithFields(logrus.Fields{
					"state":    e.State,
					"progress": e.Bootstrap.Progress,
				}).Info("runtime event")
			}))

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			job := rt.Start(ctx)
			if err := job.Wait(ctx); err != nil {
				return fmt.Errorf("start failed: %w", err)
			}
			fmt.Println("tor is bootstrapped and on")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for bootstrap")
	return cmd
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a previously started tor",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolveDirs()
			log := newLogger()
			rt := buildRuntime(log)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			job := rt.Stop(ctx)
			return job.Wait(ctx)
		},
	}
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the runtime state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolveDirs()
			log := newLogger()
			rt := buildRuntime(log)
			fmt.Println(rt.State())
			return nil
		},
	}
}
