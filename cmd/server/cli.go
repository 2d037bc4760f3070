package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/credentials"
)

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath, config.Default()); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", configPath)
		return nil
	},
}

// buckets command
var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Manage stored bucket connections",
}

var bucketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		reg := d.workspace.Registry()
		buckets, err := reg.Buckets()
		if err != nil {
			return err
		}
		if len(buckets) == 0 {
			fmt.Println("No buckets stored.")
			return nil
		}
		current, err := reg.CurrentBucketID()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tTITLE\tBUCKET\tENDPOINT")
		for _, b := range buckets {
			marker := ""
			if b.ID == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, b.ID, b.Title(), b.Credentials.Bucket, b.Credentials.Endpoint)
		}
		return w.Flush()
	},
}

var bucketsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Test and store a bucket connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		endpoint, _ := flags.GetString("endpoint")
		accessKey, _ := flags.GetString("access-key")
		bucket, _ := flags.GetString("bucket")
		region, _ := flags.GetString("region")
		provider, _ := flags.GetString("provider")

		secret, err := readSecret("Secret access key: ")
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}

		_, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		saved, err := d.workspace.Connect(cmd.Context(), credentials.BucketConfig{
			Name: name,
			Credentials: credentials.Credentials{
				Endpoint:        endpoint,
				AccessKeyID:     accessKey,
				SecretAccessKey: secret,
				Bucket:          bucket,
				Region:          region,
				Provider:        provider,
			},
		})
		if err != nil {
			return err
		}
		fmt.Printf("Connected %s (%s)\n", saved.Title(), saved.ID)
		return nil
	},
}

var bucketsImportS3CfgCmd = &cobra.Command{
	Use:   "import-s3cfg <path>",
	Short: "Import profiles from an s3cmd configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")

		_, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		added, err := d.workspace.Registry().ImportS3Cfg(args[0], bucket)
		if err != nil {
			return err
		}
		for _, b := range added {
			fmt.Printf("Imported %s (%s)\n", b.Title(), b.ID)
		}
		return nil
	},
}

var bucketsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored buckets as YAML to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSecrets, _ := cmd.Flags().GetBool("with-secrets")

		_, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		return d.workspace.Registry().Export(os.Stdout, withSecrets)
	},
}

var bucketsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge buckets from a YAML export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		_, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := d.workspace.Registry().Import(f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d bucket(s)\n", n)
		return nil
	},
}

// readSecret prompts without echo on a terminal and reads a plain line
// otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	configCmd.AddCommand(configInitCmd)

	bucketsAddCmd.Flags().String("name", "", "display name")
	bucketsAddCmd.Flags().String("endpoint", "", "S3 endpoint URL")
	bucketsAddCmd.Flags().String("access-key", "", "access key id")
	bucketsAddCmd.Flags().String("bucket", "", "bucket name")
	bucketsAddCmd.Flags().String("region", "", "region")
	bucketsAddCmd.Flags().String("provider", "", "minio, s3 or r2")
	_ = bucketsAddCmd.MarkFlagRequired("endpoint")
	_ = bucketsAddCmd.MarkFlagRequired("access-key")
	_ = bucketsAddCmd.MarkFlagRequired("bucket")

	bucketsImportS3CfgCmd.Flags().String("bucket", "", "bucket to bind every profile to")
	_ = bucketsImportS3CfgCmd.MarkFlagRequired("bucket")

	bucketsExportCmd.Flags().Bool("with-secrets", false, "include secret access keys")

	bucketsCmd.AddCommand(bucketsListCmd, bucketsAddCmd, bucketsImportS3CfgCmd, bucketsExportCmd, bucketsImportCmd)
	rootCmd.AddCommand(configCmd, bucketsCmd)
}
