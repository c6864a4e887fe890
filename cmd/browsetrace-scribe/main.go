// Package main provides the CLI entrypoint for browsetrace-scribe.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vincentbai/browsetrace-scribe/internal/config"
	"github.com/vincentbai/browsetrace-scribe/internal/database"
	"github.com/vincentbai/browsetrace-scribe/internal/draft"
	"github.com/vincentbai/browsetrace-scribe/internal/gaps"
	"github.com/vincentbai/browsetrace-scribe/internal/models"
	"github.com/vincentbai/browsetrace-scribe/internal/resolver"
	"github.com/vincentbai/browsetrace-scribe/internal/server"
	"github.com/vincentbai/browsetrace-scribe/internal/uimap"
	"github.com/vincentbai/browsetrace-scribe/internal/validator"
)

const defaultAddress = "127.0.0.1:8123"

var (
	recordAddress  string
	recordDatabase string

	exportSessionID string
	exportOut       string

	draftSessionPath string
	draftOut         string
	draftMetaOut     string
	draftBaseURL     string

	resolveDraftPath   string
	resolveMetaPath    string
	resolveUimapPath   string
	resolveSessionPath string
	resolveOut         string
	resolveMetaOut     string
	resolveGapsOut     string
	resolveMaxCands    int

	validateResolvedPath string
	validateMetaPath     string
	validateDraftPath    string
	validateGapsPath     string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "browsetrace-scribe",
		Short:         "Turn recorded browser sessions into semantically checked acceptance scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDraftCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newValidateCmd())
	return rootCmd
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run the local capture server the browser recorder posts to",
		RunE:  runRecordCmd,
	}
	cmd.Flags().StringVar(&recordAddress, "address", "", "listen address (default: "+defaultAddress+")")
	cmd.Flags().StringVar(&recordDatabase, "database", "", "sqlite database path")
	return cmd
}

func runRecordCmd(_ *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if recordAddress == "" && fileCfg.Record.Address != nil {
		recordAddress = *fileCfg.Record.Address
	}
	if recordAddress == "" {
		recordAddress = defaultAddress
	}
	if recordDatabase == "" && fileCfg.Record.DatabasePath != nil {
		recordDatabase = *fileCfg.Record.DatabasePath
	}
	if recordDatabase == "" {
		dataDir, err := config.DefaultDataDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create application directory: %w", err)
		}
		recordDatabase = filepath.Join(dataDir, "sessions.db")
	}

	db, err := database.NewDatabase(recordDatabase)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return server.NewServer(db, recordAddress, logger).Start()
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			infos, err := db.ListSessions()
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%s  %s  %d events\n",
					info.SessionID, info.StartedAt.Format("2006-01-02 15:04:05"), info.EventsCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recordDatabase, "database", "", "sqlite database path")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a recorded session as pipeline-ready JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			session, err := db.LoadSession(exportSessionID)
			if err != nil {
				return err
			}
			if exportOut == "" {
				exportOut = exportSessionID + ".json"
			}
			return writeJSON(exportOut, session)
		},
	}
	cmd.Flags().StringVar(&recordDatabase, "database", "", "sqlite database path")
	cmd.Flags().StringVar(&exportSessionID, "session", "", "session id to export")
	cmd.Flags().StringVar(&exportOut, "out", "", "output path (default: <session>.json)")
	cmd.MarkFlagRequired("session")
	return cmd
}

func newDraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Infer a literal draft script from a session recording",
		RunE:  runDraftCmd,
	}
	cmd.Flags().StringVar(&draftSessionPath, "session", "", "session JSON path")
	cmd.Flags().StringVar(&draftOut, "out", "draft.feature", "draft script output path")
	cmd.Flags().StringVar(&draftMetaOut, "meta", "draft.meta.json", "draft metadata output path")
	cmd.Flags().StringVar(&draftBaseURL, "base-url", "", "base URL stripped from recorded routes")
	cmd.MarkFlagRequired("session")
	return cmd
}

func runDraftCmd(_ *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if draftBaseURL == "" && fileCfg.Resolve.BaseURL != nil {
		draftBaseURL = *fileCfg.Resolve.BaseURL
	}

	session, err := readSession(draftSessionPath)
	if err != nil {
		return err
	}
	result, err := draft.Build(session, draft.Options{BaseURL: draftBaseURL})
	if err != nil {
		return err
	}
	if err := writeJSON(draftMetaOut, result.Metadata); err != nil {
		return err
	}
	if result.Metadata.InputStatus == models.InputInvalid {
		return fmt.Errorf("session rejected: %v", result.Metadata.Warnings)
	}
	if err := os.WriteFile(draftOut, []byte(result.Script), 0o644); err != nil {
		return fmt.Errorf("failed to write draft script: %w", err)
	}
	fmt.Printf("drafted %d steps (%d escape hatches) from %d events\n",
		result.Metadata.StepsInferredCount, result.Metadata.EscapeHatchCount, result.Metadata.EventsCount)
	return nil
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Rewrite draft references to canonical ui-map keys",
		RunE:  runResolveCmd,
	}
	cmd.Flags().StringVar(&resolveDraftPath, "draft", "", "draft script path")
	cmd.Flags().StringVar(&resolveMetaPath, "meta", "", "draft metadata path")
	cmd.Flags().StringVar(&resolveUimapPath, "uimap", "", "ui map YAML path")
	cmd.Flags().StringVar(&resolveSessionPath, "session", "", "session JSON path (enables test-id recovery)")
	cmd.Flags().StringVar(&resolveOut, "out", "resolved.feature", "resolved script output path")
	cmd.Flags().StringVar(&resolveMetaOut, "resolved-meta", "resolved.meta.json", "resolved metadata output path")
	cmd.Flags().StringVar(&resolveGapsOut, "gaps", "uigaps.json", "diagnostics report output path")
	cmd.Flags().IntVar(&resolveMaxCands, "max-candidates", resolver.DefaultMaxCandidates, "candidate list cap per ambiguous step")
	cmd.MarkFlagRequired("draft")
	cmd.MarkFlagRequired("meta")
	cmd.MarkFlagRequired("uimap")
	return cmd
}

func runResolveCmd(_ *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if resolveMaxCands == resolver.DefaultMaxCandidates && fileCfg.Resolve.MaxCandidates != nil {
		resolveMaxCands = *fileCfg.Resolve.MaxCandidates
	}

	draftText, err := os.ReadFile(resolveDraftPath)
	if err != nil {
		return fmt.Errorf("failed to read draft script: %w", err)
	}
	var meta models.DraftMetadata
	if err := readJSON(resolveMetaPath, &meta); err != nil {
		return err
	}
	catalog, err := uimap.Load(resolveUimapPath)
	if err != nil {
		return err
	}
	var session *models.Session
	if resolveSessionPath != "" {
		session, err = readSession(resolveSessionPath)
		if err != nil {
			return err
		}
	}

	result, err := resolver.Resolve(string(draftText), &meta, catalog, session, resolver.Options{
		MaxCandidates: resolveMaxCands,
		DraftPath:     resolveDraftPath,
		UIMapPath:     resolveUimapPath,
		SessionPath:   resolveSessionPath,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(resolveOut, []byte(result.Script), 0o644); err != nil {
		return fmt.Errorf("failed to write resolved script: %w", err)
	}
	if err := writeJSON(resolveMetaOut, result.Metadata); err != nil {
		return err
	}
	if err := writeJSON(resolveGapsOut, result.Report); err != nil {
		return err
	}

	fmt.Print(gaps.Render(&result.Report))
	if gaps.HasErrors(&result.Report) {
		return fmt.Errorf("resolution produced %d error findings", result.Report.Stats.Errors)
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that resolved artifacts are mutually consistent",
		RunE:  runValidateCmd,
	}
	cmd.Flags().StringVar(&validateResolvedPath, "resolved", "", "resolved script path")
	cmd.Flags().StringVar(&validateMetaPath, "resolved-meta", "", "resolved metadata path")
	cmd.Flags().StringVar(&validateDraftPath, "draft", "", "draft script path (optional)")
	cmd.Flags().StringVar(&validateGapsPath, "gaps", "", "diagnostics report path (optional)")
	cmd.MarkFlagRequired("resolved")
	cmd.MarkFlagRequired("resolved-meta")
	return cmd
}

func runValidateCmd(_ *cobra.Command, _ []string) error {
	resolvedText, err := os.ReadFile(validateResolvedPath)
	if err != nil {
		return fmt.Errorf("failed to read resolved script: %w", err)
	}
	var meta models.ResolvedMetadata
	if err := readJSON(validateMetaPath, &meta); err != nil {
		return err
	}

	in := validator.Inputs{
		ResolvedScript: string(resolvedText),
		ResolvedPath:   validateResolvedPath,
		Metadata:       &meta,
		DraftPath:      validateDraftPath,
	}
	if validateDraftPath != "" {
		draftText, err := os.ReadFile(validateDraftPath)
		if err != nil {
			return fmt.Errorf("failed to read draft script: %w", err)
		}
		in.DraftScript = string(draftText)
	}
	if validateGapsPath != "" {
		var report models.UiGapsReport
		if err := readJSON(validateGapsPath, &report); err != nil {
			return err
		}
		in.Report = &report
	}

	result := validator.Validate(in)
	for _, v := range result.Warnings {
		fmt.Printf("warning %s: %s\n", v.Code, v.Message)
	}
	for _, v := range result.Errors {
		if v.Line > 0 {
			fmt.Printf("error %s %s:%d: %s\n", v.Code, v.File, v.Line, v.Message)
		} else {
			fmt.Printf("error %s: %s\n", v.Code, v.Message)
		}
	}
	if !result.OK() {
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}
	fmt.Println("artifacts are consistent")
	return nil
}

func openDatabase() (*database.Database, error) {
	if recordDatabase == "" {
		dataDir, err := config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
		recordDatabase = filepath.Join(dataDir, "sessions.db")
	}
	return database.NewDatabase(recordDatabase)
}

func readSession(path string) (*models.Session, error) {
	var session models.Session
	if err := readJSON(path, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if path == "" {
		path = "out.json"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
