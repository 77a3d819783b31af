package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-mirror/internal/collector"
	"github.com/kurihiro0119/github-org-mirror/internal/config"
	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/logging"
	"github.com/kurihiro0119/github-org-mirror/internal/seeder"
	"github.com/kurihiro0119/github-org-mirror/internal/storage"
	"github.com/kurihiro0119/github-org-mirror/internal/storage/postgres"
	"github.com/kurihiro0119/github-org-mirror/internal/storage/sqlite"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
	"github.com/kurihiro0119/github-org-mirror/pkg/client"
)

var (
	outputJSON   bool
	endpoint     string
	repoFilter   string
	branchFilter string
	seedExport   bool
)

var rootCmd = &cobra.Command{
	Use:   "github-mirror",
	Short: "GitHub organization mirror tool",
	Long: `A CLI tool for seeding and inspecting an in-memory mirror of a GitHub organization.

The mirror holds the organization, its members, its repositories and the
commits unique to each branch relative to the reference branch.`,
	SilenceUsage: true,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a mirror from GitHub",
	Long:  `Walk the organization visible to GITHUB_TOKEN and print what was mirrored.`,
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the contents of a running mirror",
	Long:  `Read mirrored collections from a running server (API_ENDPOINT).`,
}

var showOrgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Show mirrored organizations",
	Args:  cobra.NoArgs,
	RunE:  runShowOrgs,
}

var showMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "Show mirrored members",
	Args:  cobra.NoArgs,
	RunE:  runShowMembers,
}

var showReposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Show mirrored repositories",
	Args:  cobra.NoArgs,
	RunE:  runShowRepos,
}

var showCommitsCmd = &cobra.Command{
	Use:   "commits",
	Short: "Show mirrored commits",
	Long:  `Display mirrored commits, optionally filtered by repository node id and branch.`,
	Args:  cobra.NoArgs,
	RunE:  runShowCommits,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a running mirror to SQLite or PostgreSQL",
	Long:  `Fetch the snapshot of a running server and write it with the exporter selected by STORAGE_TYPE.`,
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "server endpoint (default is API_ENDPOINT)")

	seedCmd.Flags().BoolVar(&seedExport, "export", false, "write the seeded snapshot with the configured exporter")

	showCommitsCmd.Flags().StringVar(&repoFilter, "repo", "", "repository node id")
	showCommitsCmd.Flags().StringVar(&branchFilter, "branch", "", "branch name")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	showCmd.AddCommand(showOrgsCmd)
	showCmd.AddCommand(showMembersCmd)
	showCmd.AddCommand(showReposCmd)
	showCmd.AddCommand(showCommitsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func getClient() (*client.Client, error) {
	if endpoint != "" {
		return client.NewClient(endpoint), nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return client.NewClient(cfg.APIEndpoint), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if seedExport {
		if err := cfg.ValidateExport(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	st := store.New()
	st.SetCredential(cfg.GitHubToken)
	sd := seeder.New(st, nil, logger,
		seeder.WithReferenceBranch(cfg.ReferenceBranch),
		seeder.WithConcurrency(cfg.SeedConcurrency),
	)
	remote := collector.NewGitHubCollector(cfg.GitHubToken,
		collector.WithLogger(logger),
		collector.WithCommitPageSize(cfg.CommitPageSize),
	)

	report, seedErr := sd.Seed(ctx, remote)
	if seedErr != nil && report.Organization == "" {
		return fmt.Errorf("failed to seed: %w", seedErr)
	}
	if seedErr != nil {
		logger.Warn("seed finished with errors", zap.Error(seedErr))
	}

	if seedExport {
		if err := export(ctx, cfg, st.Snapshot()); err != nil {
			return err
		}
	}

	if outputJSON {
		return printJSON(report)
	}

	fmt.Printf("\nSeeded organization: %s (run %s)\n\n", report.Organization, report.RunID)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Collection", "Count"})
	table.Append([]string{"Organizations", strconv.Itoa(report.Organizations)})
	table.Append([]string{"Members", strconv.Itoa(report.Members)})
	table.Append([]string{"Repositories", strconv.Itoa(report.Repositories)})
	table.Append([]string{"Commits", strconv.Itoa(report.Commits)})
	table.Render()

	if len(report.Skipped) > 0 {
		fmt.Printf("\nSkipped (no %s branch): %s\n", cfg.ReferenceBranch, strings.Join(report.Skipped, ", "))
	}
	if len(report.Failed) > 0 {
		fmt.Printf("Failed: %s\n", strings.Join(report.Failed, ", "))
	}
	return nil
}

func runShowOrgs(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	orgs, err := c.GetOrganizations(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get organizations: %w", err)
	}

	if outputJSON {
		return printJSON(orgs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Login", "Name", "Node ID", "URL"})
	for _, o := range orgs {
		table.Append([]string{o.Login, o.Name, o.NodeID, o.URL})
	}
	table.Render()
	return nil
}

func runShowMembers(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	members, err := c.GetMembers(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get members: %w", err)
	}

	if outputJSON {
		return printJSON(members)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Login", "Node ID"})
	for _, m := range members {
		table.Append([]string{m.Login, m.NodeID})
	}
	table.Render()
	return nil
}

func runShowRepos(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	repos, err := c.GetRepositories(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get repositories: %w", err)
	}

	if outputJSON {
		return printJSON(repos)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Node ID", "URL"})
	for _, r := range repos {
		table.Append([]string{r.FullName, r.NodeID, r.URL})
	}
	table.Render()
	return nil
}

func runShowCommits(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	commits, err := c.GetCommits(cmd.Context(), repoFilter, branchFilter)
	if err != nil {
		return fmt.Errorf("failed to get commits: %w", err)
	}

	if outputJSON {
		return printJSON(commits)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SHA", "Repository", "Branch", "Author", "Message"})
	for _, commit := range commits {
		table.Append([]string{
			shortSHA(commit.SHA),
			commit.Repository,
			commit.Branch,
			commit.Author.Name,
			firstLine(commit.Message),
		})
	}
	table.Render()
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateExport(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c, err := getClient()
	if err != nil {
		return err
	}

	snapshot, err := c.GetSnapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}

	return export(cmd.Context(), cfg, *snapshot)
}

func export(ctx context.Context, cfg *config.Config, snapshot domain.Snapshot) error {
	out, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer out.Close()

	if err := out.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d organizations, %d members, %d repositories, %d commits to %s\n",
		len(snapshot.Organizations), len(snapshot.Members), len(snapshot.Repositories), len(snapshot.Commits), cfg.StorageType)
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return line
}
