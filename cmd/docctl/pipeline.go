package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/models"
	"docchat/internal/rag"
	"docchat/internal/util"
)

func ingestCMD() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "ingest <document-id>",
		Short: "Fetch and chunk a registered document without embedding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				chunks, err := a.Ingester.Ingest(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, c := range chunks {
					fmt.Fprintf(w, "p%d #%d (%d chars) %s\n", c.Page, c.ChunkIndex, len([]rune(c.Text)), util.DisplaySnippet(c.Text, 80))
				}
				if out == "" {
					return nil
				}
				path := util.SafeJoin(out, args[0]+".chunks.jsonl")
				if err := util.WriteJSONLines(path, chunks); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %d chunks to %s\n", len(chunks), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "directory to write <id>.chunks.jsonl into")
	return cmd
}

func embedCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "embed <document-id>",
		Short: "Ensure a document's namespace is embedded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				h, err := a.Embedder.EnsureEmbedded(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, h)
			})
		},
	}
}

func retrieveCMD() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "retrieve <document-id> <query>",
		Short: "Show the closest chunks of an embedded document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Retriever.Retrieve(ctx, args[0], query, k)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for i, m := range res.Matches {
					fmt.Fprintf(w, "%d. score=%.4f page=%d %s\n", i+1, m.Score, m.Chunk.Page, util.DisplayEvidenceSnippet(m.Chunk.Text, query, 220))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks (default DOCCHAT_TOP_K)")
	return cmd
}

func contextCMD() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "context <query> <document-id>...",
		Short: "Assemble the chat context and system prompt for documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				refs := make([]models.DocumentRef, 0, len(args)-1)
				for _, id := range args[1:] {
					doc, err := a.Files.GetFile(ctx, id)
					if err != nil {
						return err
					}
					refs = append(refs, models.DocumentRef{ID: doc.ID, Name: doc.Name, URL: doc.URL, Size: doc.SizeBytes, MimeType: doc.MimeType})
				}
				text, report := a.RAG.BuildContext(ctx, refs, args[0])
				fmt.Fprintln(cmd.OutOrStdout(), rag.SystemPrompt(text))
				if out != "" {
					return util.WriteJSONAtomic(out, report)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "report", "", "write the per-document report as JSON to this file")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
