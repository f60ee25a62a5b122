package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestRecursive bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Add documents to the knowledge base",
	Long: `Reads, chunks, embeds and indexes the given files.

Directories are ingested file by file; unsupported file types are skipped
when walking a directory and reported when named directly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", false, "descend into subdirectories")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := context.Background()
	var ingested, failed int

	for _, path := range args {
		files, err := expandPath(path)
		if err != nil {
			return err
		}

		for _, file := range files {
			doc, err := ingestService.IngestFile(ctx, file)
			if err != nil {
				failed++
				cmd.PrintErrf("✗ %s: %v\n", file, err)
				continue
			}
			ingested++
			cmd.Printf("✓ %s (%d chunks, id %s)\n", file, doc.ChunkCount, doc.ID)
		}
	}

	cmd.Printf("\nIngested %d document(s)", ingested)
	if failed > 0 {
		cmd.Printf(", %d failed", failed)
	}
	cmd.Println()

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

// expandPath resolves a file or directory argument to ingestable files.
func expandPath(path string) ([]string, error) {
	info, err := filepath.Glob(path)
	if err != nil || len(info) == 0 {
		info = []string{path}
	}

	var files []string
	for _, p := range info {
		stat, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !stat.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(sub string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if sub != p && !ingestRecursive {
					return filepath.SkipDir
				}
				return nil
			}
			if registry != nil {
				if _, err := registry.For(d.Name()); err != nil {
					return nil // skip unsupported silently when walking
				}
			}
			files = append(files, sub)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
