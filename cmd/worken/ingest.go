package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/documents"
	"github.com/Noctocode/worken-ai/internal/store"
)

var (
	ingestProject string
	ingestUser    string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestProject, "project", "", "project id (required)")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "id of the user the ingestion acts for (required)")
	_ = ingestCmd.MarkFlagRequired("project")
	_ = ingestCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into a project",
	Long: `Ingest a PDF, DOCX or plain text file into a project's knowledge.

The user must have access to the project. PDF and DOCX files are extracted
and titled from their filename; other files are ingested as pasted text.

Examples:
  # Ingest a handbook
  worken ingest --project 6f1c... --user 9a2e... handbook.pdf

  # Ingest from stdin
  cat notes.md | worken ingest --project 6f1c... --user 9a2e... -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// mimeFromPath maps the extensions the extractor supports; everything else
// is treated as text.
func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return documents.MIMEPDF
	case ".docx":
		return documents.MIMEDOCX
	default:
		return ""
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// principalFor loads the acting user from the store.
func principalFor(ctx context.Context, s store.Store, userID string) (access.Principal, error) {
	u, err := s.Users().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return access.Principal{}, fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return access.Principal{}, err
	}
	return access.Principal{UserID: u.ID, Email: u.Email, IsPaid: u.IsPaid}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	data, err := readInput(args[0])
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	d, err := a.services(ctx)
	if err != nil {
		return err
	}
	principal, err := principalFor(ctx, a.store, ingestUser)
	if err != nil {
		return err
	}

	var chunks []documents.Chunk
	if mimeType := mimeFromPath(args[0]); mimeType != "" {
		chunks, err = d.documents.CreateFromFile(ctx, principal, ingestProject, data, mimeType, filepath.Base(args[0]))
	} else {
		chunks, err = d.documents.CreateFromText(ctx, principal, ingestProject, string(data))
	}
	if err != nil {
		return fmt.Errorf("%s", apperr.MessageOf(err))
	}

	out := cmd.OutOrStdout()
	if len(chunks) == 0 {
		fmt.Fprintln(out, "Nothing to ingest: no chunk reached the minimum length")
		return nil
	}
	fmt.Fprintf(out, "Ingested %d chunk(s)\n", len(chunks))
	fmt.Fprintf(out, "  Group: %s\n", chunks[0].GroupID)
	fmt.Fprintf(out, "  Title: %s\n", chunks[0].Title)
	return nil
}
