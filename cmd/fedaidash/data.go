package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fedaidash/internal/auth"
	"fedaidash/internal/importer"
)

func kindNames() string {
	names := make([]string, 0, len(importer.Kinds()))
	for _, k := range importer.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <kind> <file>",
		Short: "Replace one collection with the rows of a CSV file",
		Long: "Replace one collection with the rows of a CSV file. Use - to read standard input.\n" +
			"Kinds: " + kindNames() + ".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			kind, err := importer.ParseKind(args[0])
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeStore()) }()

			report, err := importer.Load(ctx, store, kind, in)
			if err != nil {
				return err
			}
			a.logger.Info("import finished",
				zap.String("kind", string(kind)),
				zap.Int("rows", report.Rows),
				zap.Int("created", report.Created),
				zap.Int("skipped", report.Skipped),
				zap.Int("unmatched", report.Unmatched),
			)
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write every table to the blob store as gzipped JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeStore()) }()
			blobs, err := a.openBlobs(ctx)
			if err != nil {
				return err
			}
			manifest, err := importer.Backup(ctx, store, blobs, time.Now())
			if err != nil {
				return err
			}
			a.logger.Info("backup written",
				zap.String("prefix", manifest.Prefix),
				zap.Int("records", manifest.Metadata.TotalRecords),
			)
			return writeJSON(cmd.OutOrStdout(), manifest)
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [prefix]",
		Short: "Replace every table with a backup (the latest when no prefix is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			blobs, err := a.openBlobs(ctx)
			if err != nil {
				return err
			}
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			} else if prefix, err = importer.LatestBackup(ctx, blobs); err != nil {
				return err
			}
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeStore()) }()
			meta, err := importer.Restore(ctx, store, blobs, prefix)
			if err != nil {
				return err
			}
			a.logger.Info("backup restored", zap.String("prefix", prefix), zap.Int("records", meta.TotalRecords))
			return writeJSON(cmd.OutOrStdout(), importer.Manifest{Prefix: prefix, Metadata: meta})
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "hash-password [password]",
		Short:       "Print the bcrypt hash to set as auth.password_hash",
		Long:        "Print the bcrypt hash of a password. The password is read from standard input when not given.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = strings.TrimRight(string(raw), "\r\n")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
