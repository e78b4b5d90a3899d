package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
)

var (
	ingestOwner string
	ingestFile  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [text]",
	Short: "Absorb a note into the memory graph",
	Long:  "Ingest a note from the command line or from a file and report what it changed.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "default", "owner the note belongs to")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "read the note text from a file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var text, sourceID string
	switch {
	case ingestFile != "":
		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return fmt.Errorf("read note file: %w", err)
		}
		text = strings.TrimSpace(string(data))
		sourceID = filepath.Base(ingestFile)
	case len(args) == 1:
		text = strings.TrimSpace(args[0])
	default:
		return fmt.Errorf("provide note text as an argument or via --file")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := a.engine.Ingest(ctx, engine.IngestRequest{
		OwnerID:    ingestOwner,
		Text:       text,
		SourceType: "cli",
		SourceID:   sourceID,
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("note %s ingested\n", res.NoteID)
	fmt.Printf("  entities: %d (%d new)\n", len(res.Entities), res.NewEntities)
	fmt.Printf("  relationships: %d, facts: %d, supersessions: %d\n",
		res.Relationships, res.Facts, res.Supersessions)
	for _, e := range res.Entities {
		fmt.Printf("  - %s (%s, %d mentions)\n", e.Name, e.Kind, e.MentionCount)
	}
	return nil
}
