package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scripthost-io/restorer/internal/assets"
	"github.com/scripthost-io/restorer/internal/feed"
	"github.com/scripthost-io/restorer/internal/restore"
	"github.com/scripthost-io/restorer/internal/search"
)

// watchHost prints completions as they arrive.
type watchHost struct{}

func (watchHost) RestoreCompleted(res assets.Resolved) {
	fmt.Printf("restore completed: %d compile, %d runtime artifacts\n", len(res.Compile), len(res.Runtime))
}

func (watchHost) RestoreFailed(errs []string) {
	fmt.Printf("restore failed:\n  %s\n", strings.Join(errs, "\n  "))
}

func (watchHost) SearchCompleted([]search.Summary) {}
func (watchHost) PackageInstalled(search.Summary)  {}

func watchCmd() *cobra.Command {
	var (
		framework  string
		outputDir  string
		packages   string
		enginePath string
	)

	cmd := &cobra.Command{
		Use:   "watch <id[@range]>...",
		Short: "Restore, then re-restore whenever the sources config changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enginePath == "" {
				return errors.New("--engine is required")
			}

			refs := make([]restore.PackageReference, 0, len(args))

			for _, arg := range args {
				ref, err := parseReference(arg)
				if err != nil {
					return err
				}

				refs = append(refs, ref)
			}

			logger := newLogger()

			session, err := restore.NewSession(restore.SessionOptions{
				Registry:    newRegistry(),
				Engine:      restore.NewToolEngine(enginePath),
				Host:        watchHost{},
				Logger:      logger,
				OutputPath:  outputDir,
				PackagesDir: packages,
				Framework:   framework,
			})
			if err != nil {
				return err
			}

			defer session.Close()

			watcher, err := configWatcher(logger, session)
			if err != nil {
				return err
			}

			defer watcher.Close()

			session.UpdateReferences(refs)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			select {
			case <-sig:
			case <-cmd.Context().Done():
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "net8.0", "target framework moniker")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "obj", "restore output directory")
	cmd.Flags().StringVarP(&packages, "packages", "p", "packages", "installed packages root")
	cmd.Flags().StringVarP(&enginePath, "engine", "e", "", "restore engine executable")

	return cmd
}

func configWatcher(logger *log.Logger, session *restore.Session) (*feed.ConfigWatcher, error) {
	return feed.NewConfigWatcher(func(path string) {
		logger.Info("sources config changed, re-restoring", "path", path)
		session.TriggerRestore()
	}, configPaths...)
}
