package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scripthost-io/restorer/internal/assets"
	"github.com/scripthost-io/restorer/internal/restore"
	"github.com/scripthost-io/restorer/internal/search"
)

// cliHost funnels session callbacks into a channel so the command can block
// until the attempt settles.
type cliHost struct {
	done chan restoreResult
}

type restoreResult struct {
	resolved assets.Resolved
	errs     []string
}

func (h *cliHost) RestoreCompleted(res assets.Resolved) {
	h.done <- restoreResult{resolved: res}
}

func (h *cliHost) RestoreFailed(errs []string) {
	h.done <- restoreResult{errs: errs}
}

func (h *cliHost) SearchCompleted([]search.Summary) {}
func (h *cliHost) PackageInstalled(search.Summary)  {}

// parseReference parses "Id@range" command-line arguments; a bare id means
// any version.
func parseReference(arg string) (restore.PackageReference, error) {
	id, rng, found := strings.Cut(arg, "@")
	if id == "" {
		return restore.PackageReference{}, fmt.Errorf("invalid reference %q", arg)
	}

	if !found {
		rng = ">=0.0.0"
	}

	return restore.PackageReference{ID: id, Range: rng}, nil
}

func printResolved(res assets.Resolved) {
	for _, p := range res.Compile {
		fmt.Printf("compile %s\n", p)
	}

	for _, p := range res.Runtime {
		fmt.Printf("runtime %s\n", p)
	}
}

func restoreCmd() *cobra.Command {
	var (
		framework  string
		outputDir  string
		packages   string
		enginePath string
	)

	cmd := &cobra.Command{
		Use:   "restore <id[@range]>...",
		Short: "Restore package references and print artifact paths",
		Args:  cobra.MinimumNArgs(0),
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

			host := &cliHost{done: make(chan restoreResult, 1)}

			session, err := restore.NewSession(restore.SessionOptions{
				Registry:    newRegistry(),
				Engine:      restore.NewToolEngine(enginePath),
				Host:        host,
				Logger:      newLogger(),
				OutputPath:  outputDir,
				PackagesDir: packages,
				Framework:   framework,
			})
			if err != nil {
				return err
			}

			defer session.Close()

			session.UpdateReferences(refs)

			// A no-op outcome fires no callback; poll for it.
			tick := time.NewTicker(50 * time.Millisecond)
			defer tick.Stop()

			for {
				select {
				case res := <-host.done:
					if len(res.errs) > 0 {
						return fmt.Errorf("restore failed:\n  %s", strings.Join(res.errs, "\n  "))
					}

					printResolved(res.resolved)

					return nil
				case <-tick.C:
					if session.Status() == restore.StatusSucceeded && !session.IsRestoring() {
						printResolved(session.Resolved())

						return nil
					}
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "net8.0", "target framework moniker")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "obj", "restore output directory")
	cmd.Flags().StringVarP(&packages, "packages", "p", "packages", "installed packages root")
	cmd.Flags().StringVarP(&enginePath, "engine", "e", "", "restore engine executable")

	return cmd
}
