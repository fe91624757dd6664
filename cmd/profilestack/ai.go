package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/profilestack/internal/extract"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/session"
)

// maxParallelGenerations bounds concurrent requests for generate --all.
const maxParallelGenerations = 3

type platformGenerator interface {
	Generate(ctx context.Context, creds identity.Credentials, platform generate.Platform, req generate.Request) (string, error)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate [platform]",
	Short: "Generate platform content from the account profile",
	Long: `Generate content for one platform, or every platform with --all.

Platforms: linkedin, github, resume, freelance, job_portal, cover_letter.

Examples:
  profilestack generate linkedin
  profilestack generate cover_letter --job-title "Backend Engineer" --company Acme
  profilestack generate resume --context-file ./old-resume.pdf
  profilestack generate --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("a platform is required (or --all): %s", platformNames())
		}
		var platform generate.Platform
		if !all {
			p, err := generate.ParsePlatform(args[0])
			if err != nil {
				return fmt.Errorf("%w (want one of: %s)", err, platformNames())
			}
			platform = p
		}

		req, err := generationRequest(cmd)
		if err != nil {
			return err
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		creds, err := d.ctrl.Credentials()
		if err != nil {
			return withHint(err)
		}

		out := cmd.OutOrStdout()
		if all {
			return generateAll(cmd.Context(), d.client, creds, req, out)
		}
		content, err := d.client.Generate(cmd.Context(), creds, platform, req)
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintln(out, content)
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("all", false, "generate for every platform")
	generateCmd.Flags().String("job-title", "", "target job title")
	generateCmd.Flags().String("company", "", "target company")
	generateCmd.Flags().String("context", "", "additional context for the prompt")
	generateCmd.Flags().String("context-file", "", "resume file (.txt, .md, .pdf, .docx) to add as context")
}

func platformNames() string {
	names := make([]string, 0, len(generate.Platforms()))
	for _, p := range generate.Platforms() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// generationRequest builds the request from flags. Text extracted from
// --context-file is appended to --context.
func generationRequest(cmd *cobra.Command) (generate.Request, error) {
	jobTitle, _ := cmd.Flags().GetString("job-title")
	company, _ := cmd.Flags().GetString("company")
	extra, _ := cmd.Flags().GetString("context")
	file, _ := cmd.Flags().GetString("context-file")

	if file != "" {
		text, err := extract.File(file)
		if err != nil {
			return generate.Request{}, fmt.Errorf("reading context file: %w", err)
		}
		extra = strings.TrimSpace(extra + "\n\n" + text)
	}
	return generate.Request{JobTitle: jobTitle, Company: company, AdditionalContext: extra}, nil
}

// generateAll renders every platform with bounded concurrency and prints
// the results in platform order. A failed platform does not stop the others.
func generateAll(ctx context.Context, gen platformGenerator, creds identity.Credentials, req generate.Request, out io.Writer) error {
	platforms := generate.Platforms()
	contents := make([]string, len(platforms))
	errs := make([]error, len(platforms))

	var g errgroup.Group
	g.SetLimit(maxParallelGenerations)
	for i, p := range platforms {
		g.Go(func() error {
			contents[i], errs[i] = gen.Generate(ctx, creds, p, req)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, p := range platforms {
		fmt.Fprintf(out, "%s\n", colorize(colorBold, "== "+string(p)))
		if errs[i] != nil {
			failed++
			fmt.Fprintf(out, "%s\n\n", colorize(colorRed, "failed: "+errs[i].Error()))
			continue
		}
		fmt.Fprintf(out, "%s\n\n", contents[i])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d generations failed", failed, len(platforms))
	}
	return nil
}

// --- improve-bio ---

var improveBioCmd = &cobra.Command{
	Use:   "improve-bio [bio]",
	Short: "Rewrite a bio (defaults to the profile bio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		tone, _ := cmd.Flags().GetString("tone")
		save, _ := cmd.Flags().GetBool("save")

		d, err := openDevice()
		if err != nil {
			return err
		}
		creds, err := d.ctrl.Credentials()
		if err != nil {
			return withHint(err)
		}

		bio := strings.Join(args, " ")
		if bio == "" {
			if p := d.ctrl.Active(); p != nil {
				bio = p.Bio
			}
		}
		if bio == "" {
			return fmt.Errorf("no bio given and the profile has none")
		}

		improved, err := d.client.ImproveBio(cmd.Context(), creds, bio, tone)
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), improved)

		if save {
			p := d.ctrl.Active()
			if p == nil {
				return withHint(session.ErrNoActiveProfile)
			}
			fields := p.Fields
			fields.Bio = improved
			if _, err := d.ctrl.UpdateFields(cmd.Context(), fields); err != nil {
				return withHint(err)
			}
			printSuccess("Bio saved to profile")
		}
		return nil
	},
}

func init() {
	improveBioCmd.Flags().String("tone", "professional", "professional, casual or creative")
	improveBioCmd.Flags().Bool("save", false, "store the improved bio in the profile")
}

// --- suggest-skills ---

var suggestSkillsCmd = &cobra.Command{
	Use:   "suggest-skills",
	Short: "Suggest skills missing from the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		creds, err := d.ctrl.Credentials()
		if err != nil {
			return withHint(err)
		}

		skills, err := d.client.SuggestSkills(cmd.Context(), creds)
		if err != nil {
			return withHint(err)
		}
		if len(skills) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No suggestions.")
			return nil
		}
		for _, s := range skills {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", s)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		d, err := openDevice()
		if err != nil {
			return err
		}
		creds, err := d.ctrl.Credentials()
		if err != nil {
			return withHint(err)
		}

		gens, err := d.client.Generations(cmd.Context(), creds, limit, 0)
		if err != nil {
			return withHint(err)
		}
		out := cmd.OutOrStdout()
		if len(gens) == 0 {
			fmt.Fprintln(out, "No generations found.")
			return nil
		}
		for _, g := range gens {
			id := g.ID
			if len(id) > 8 {
				id = id[:8]
			}
			content := strings.ReplaceAll(g.Content, "\n", " ")
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			status := colorize(colorGreen, g.Status)
			if g.Status != "completed" {
				status = colorize(colorRed, g.Status)
			}
			fmt.Fprintf(out, "%s  %s  %-12s %s  %s\n",
				colorize(colorCyan, id),
				g.CreatedAt.Local().Format("2006-01-02 15:04"),
				g.Platform,
				status,
				content,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of generations to list")
}
