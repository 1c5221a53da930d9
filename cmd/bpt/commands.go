package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boardindex/bpt/internal/buildinfo"
	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/signing"
	"github.com/boardindex/bpt/internal/testserver"
	"github.com/boardindex/bpt/internal/workflow"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "check-updates",
		Aliases: []string{"check_updates"},
		Short:   "Check the package index for out of date packages",
		Long: `Compare the version of every package in the registry with the most recent
version published in the board index, and report packages that are newer than
what is published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, idx, err := a.load()
			if err != nil {
				return err
			}
			report, err := a.workflow(reg, idx).Check(cmd.Context())
			if err != nil {
				return err
			}
			if report.Failed() {
				return report.Err()
			}
			return nil
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		force       bool
		outputIndex string
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:     "update-index <package>",
		Aliases: []string{"update_index"},
		Short:   "Archive a board package and add it to the index",
		Long: `Archive and compress a board package and add it to the board index. The
package must be newer than every version already in the index unless --force
is given. The argument is the package's section name in the registry file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, idx, err := a.load()
			if err != nil {
				return err
			}

			signKey := a.cfg.SignKey
			if a.cfg.SignKeyFile != "" {
				if signKey, err = signing.ReadKeyFile(a.cfg.SignKeyFile); err != nil {
					return err
				}
			}
			if outputIndex == "" {
				outputIndex = a.cfg.BoardIndex
			}

			_, err = a.workflow(reg, idx).Publish(cmd.Context(), workflow.PublishOptions{
				Name:           args[0],
				Force:          force,
				OutputIndex:    outputIndex,
				OutputDir:      outputDir,
				SignKey:        signKey,
				SignPassphrase: a.cfg.SignPassphrase,
			})
			return err
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "publish even if the index already has this or a newer version")
	cmd.Flags().StringVarP(&outputIndex, "output-board-index", "o", "", "board index file to write (default is the input board index)")
	cmd.Flags().StringVar(&outputDir, "output-board-dir", workflow.DefaultOutputDir, "directory for the package archive")
	cmd.Flags().String("sign-key-file", "", "armored OpenPGP private key; writes <index>.sig")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var (
		urlTransform string
		port         int
	)

	cmd := &cobra.Command{
		Use:     "test-server",
		Aliases: []string{"test_server"},
		Short:   "Serve the board index locally for testing",
		Long: fmt.Sprintf(`Serve the directory holding the board index over HTTP. Package URLs in a
copy of the index are pointed at this server and written to %s; point the
Arduino IDE at http://localhost:<port>/%s.`, testserver.TestIndexName, testserver.TestIndexName),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, idx, err := a.load()
			if err != nil {
				return err
			}
			return testserver.Run(cmd.Context(), testserver.Config{
				Index:        idx,
				IndexPath:    a.cfg.BoardIndex,
				URLTransform: urlTransform,
				Port:         port,
				Logger:       a.log.SugaredLogger,
				Out:          a.out,
			})
		},
	}

	cmd.Flags().StringVarP(&urlTransform, "url-transform", "u", testserver.DefaultURLTransform, "URL host and path prefix to replace with localhost:<port>")
	cmd.Flags().IntVarP(&port, "port", "p", testserver.DefaultPort, "port for the test server")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var keyFile, sigFile string

	cmd := &cobra.Command{
		Use:   "verify-index",
		Short: "Verify the detached signature of the board index",
		Long: `Check the board index against its detached OpenPGP signature, by default
<board-index>.sig, using an armored public key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := signing.ReadKeyFile(keyFile)
			if err != nil {
				return err
			}
			if sigFile == "" {
				sigFile = a.cfg.BoardIndex + signing.SignatureSuffix
			}
			data, err := os.ReadFile(a.cfg.BoardIndex)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrConfig, err)
			}
			sig, err := os.ReadFile(sigFile)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrConfig, err)
			}
			if err := signing.Verify(data, sig, key); err != nil {
				return fmt.Errorf("%s: %w", a.cfg.BoardIndex, err)
			}
			a.log.Infow("index signature verified", "index", a.cfg.BoardIndex, "signature", sigFile)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signature OK: %s\n", a.cfg.BoardIndex)
			return err
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "", "armored OpenPGP public key file")
	cmd.Flags().StringVar(&sigFile, "signature", "", "signature file (default is <board-index>.sig)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "bpt %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildTime)
			return err
		},
	}
}
