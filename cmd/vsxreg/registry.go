package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"vsxreg/internal/app"
	"vsxreg/internal/errs"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// namespace command
var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage namespaces",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		a, err := newApp(cmd, "CreateNamespace", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ns, err := a.CreateNamespace(cmd.Context(), args[0], owner)
		if err != nil {
			return fmt.Errorf("creating namespace: %w", err)
		}
		color.Green("Created namespace %s", ns.Name)
		return nil
	},
}

var namespaceTransferCmd = &cobra.Command{
	Use:   "transfer NAME OWNER",
	Short: "Change the user allowed to publish to a namespace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "TransferNamespace", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.TransferNamespace(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("transferring namespace: %w", err)
		}
		color.Green("Namespace %s now owned by %s", args[0], args[1])
		return nil
	},
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish FILE",
	Short: "Publish a .vsix package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		wait, _ := cmd.Flags().GetBool("wait")

		a, err := newApp(cmd, "Publish", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Publish(cmd.Context(), args[0], user)
		if err != nil {
			return fmt.Errorf("publishing: %w", err)
		}
		fmt.Printf("Staged %s %s (%s)\n", res.Extension.FullName(), res.Version.Version, res.Version.TargetPlatform)

		if !wait {
			return nil
		}
		n, err := a.ProcessPending(cmd.Context())
		if err != nil {
			return fmt.Errorf("processing: %w", err)
		}
		color.Green("Activated %d version(s)", n)
		return nil
	},
}

// process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Store, sign and activate staged uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ProcessPending", args)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ProcessPending(cmd.Context())
		if err != nil {
			return fmt.Errorf("processing: %w", err)
		}
		if n == 0 {
			fmt.Println("Nothing staged.")
			return nil
		}
		color.Green("Activated %d version(s)", n)
		return nil
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve NAMESPACE EXTENSION [VERSION]",
	Short: "Resolve a version or alias (latest, pre-release)",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		version := "latest"
		if len(args) == 3 {
			version = args[2]
		}

		a, err := newApp(cmd, "ResolveVersion", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rv, err := a.ResolveVersion(cmd.Context(), args[0], args[1], platform, version)
		if err != nil {
			return err
		}
		return printJSON(rv)
	},
}

// query command
var queryCmd = &cobra.Command{
	Use:   "query [FILE]",
	Short: "Answer a marketplace query read from FILE or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		var body []byte
		var err error
		if len(args) == 1 {
			body, err = os.ReadFile(args[0])
		} else {
			body, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading query: %w", err)
		}

		a, err := newApp(cmd, "Query", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Query(cmd.Context(), body, platform)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset NAMESPACE EXTENSION VERSION TOKEN",
	Short: "Fetch an asset of a version",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "GetAsset", args)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.GetAsset(cmd.Context(), args[0], args[1], args[2], platform, args[3])
		if err != nil {
			return err
		}
		if resp.IsRedirect() {
			fmt.Printf("Redirect: %s\n", resp.RedirectURL)
			return nil
		}
		return writeContent(output, resp.Content)
	},
}

// browse command
var browseCmd = &cobra.Command{
	Use:   "browse NAMESPACE EXTENSION VERSION [PATH]",
	Short: "List or fetch the bundled files of a version",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		path := ""
		if len(args) == 4 {
			path = args[3]
		}

		a, err := newApp(cmd, "Browse", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Browse(cmd.Context(), args[0], args[1], args[2], path)
		if err != nil {
			return err
		}
		if res.File == nil {
			return printJSON(res.Entries)
		}
		if res.File.IsRedirect() {
			fmt.Printf("Redirect: %s\n", res.File.RedirectURL)
			return nil
		}
		return writeContent(output, res.File.Content)
	},
}

func writeContent(path string, content []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", len(content), path)
	return nil
}

// admin command
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative changes to published extensions",
}

var adminDeactivateCmd = &cobra.Command{
	Use:   "deactivate NAMESPACE EXTENSION VERSION",
	Short: "Hide a version without deleting it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		a, err := newApp(cmd, "DeactivateVersion", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeactivateVersion(cmd.Context(), args[0], args[1], args[2], platform); err != nil {
			return fmt.Errorf("deactivating version: %w", err)
		}
		color.Green("Deactivated %s.%s %s", args[0], args[1], args[2])
		return nil
	},
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete NAMESPACE EXTENSION VERSION",
	Short: "Delete a version and its files",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		a, err := newApp(cmd, "DeleteVersion", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteVersion(cmd.Context(), args[0], args[1], args[2], platform); err != nil {
			return fmt.Errorf("deleting version: %w", err)
		}
		color.Green("Deleted %s.%s %s", args[0], args[1], args[2])
		return nil
	},
}

var adminDeleteExtensionCmd = &cobra.Command{
	Use:   "delete-extension NAMESPACE EXTENSION",
	Short: "Delete an extension with all versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteExtension", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteExtension(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("deleting extension: %w", err)
		}
		color.Green("Deleted %s.%s", args[0], args[1])
		return nil
	},
}

var adminRenameCmd = &cobra.Command{
	Use:   "rename NAMESPACE EXTENSION NEW_NAME",
	Short: "Rename an extension",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RenameExtension", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RenameExtension(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return fmt.Errorf("renaming extension: %w", err)
		}
		color.Green("Renamed %s.%s to %s.%s", args[0], args[1], args[0], args[2])
		return nil
	},
}

var adminDeactivatePublisherCmd = &cobra.Command{
	Use:   "deactivate-publisher USER",
	Short: "Deactivate every version published by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeactivatePublisher", args)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.DeactivatePublisher(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("deactivating publisher: %w", err)
		}
		color.Green("Deactivated %d version(s) published by %s", n, args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the signing key pair",
}

var keysRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Generate a new active signing key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		resign, _ := cmd.Flags().GetBool("resign")

		a, err := newApp(cmd, "RenewKeyPair", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RenewKeyPair(cmd.Context(), resign)
		if err != nil {
			return fmt.Errorf("renewing key pair: %w", err)
		}
		color.Green("Active key pair: %s", res.KeyPair.ID)
		if resign {
			fmt.Printf("Re-signed %d version(s)\n", res.Resigned)
		}
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the signing key pair if none is active",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CreateKeyPair", args)
		if err != nil {
			return err
		}
		defer a.Close()

		kp, err := a.EnsureKeyPair(cmd.Context())
		if err != nil {
			return fmt.Errorf("creating key pair: %w", err)
		}
		color.Green("Active key pair: %s", kp.ID)
		return nil
	},
}

var keysPublicKeyCmd = &cobra.Command{
	Use:   "public-key [ID]",
	Short: "Print a public key in PEM form (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		a, err := newApp(cmd, "PublicKey", args)
		if err != nil {
			return err
		}
		defer a.Close()

		kp, err := a.PublicKey(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Print(kp.PublicKeyText)
		return nil
	},
}

var keysVerifyCmd = &cobra.Command{
	Use:   "verify NAMESPACE EXTENSION VERSION",
	Short: "Verify the stored signature of a version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		a, err := newApp(cmd, "VerifyVersion", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.VerifyVersion(cmd.Context(), args[0], args[1], args[2], platform)
		if err != nil {
			return err
		}
		return reportVerification(ok)
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify PACKAGE SIGNATURE PUBLIC_KEY",
	Short: "Verify a downloaded package against its signature archive",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := app.VerifyFiles(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return reportVerification(ok)
	},
}

func reportVerification(ok bool) error {
	if !ok {
		return errs.Wrap(errors.New("signature does not match"), errs.CategoryIntegrityFailure, false)
	}
	color.Green("Signature valid")
	return nil
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every cached result",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FlushCache", args)
		if err != nil {
			return err
		}
		defer a.Close()

		a.FlushCache(cmd.Context())
		color.Green("Cache flushed")
		return nil
	},
}

// storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Manage blob storage",
}

var storageValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that blob storage is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ValidateStorage", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateStorage(cmd.Context()); err != nil {
			return fmt.Errorf("storage not usable: %w", err)
		}
		color.Green("Storage OK")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-20s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	namespaceCmd.AddCommand(namespaceCreateCmd)
	namespaceCreateCmd.Flags().String("owner", "", "User allowed to publish (empty: anyone)")
	namespaceCmd.AddCommand(namespaceTransferCmd)
	rootCmd.AddCommand(namespaceCmd)

	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringP("user", "u", "", "Publishing user")
	publishCmd.Flags().Bool("wait", false, "Process the staged upload immediately")
	rootCmd.AddCommand(processCmd)

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringP("platform", "p", "", "Target platform (e.g. linux-x64)")
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringP("platform", "p", "", "Target platform of the requesting client")
	rootCmd.AddCommand(assetCmd)
	assetCmd.Flags().StringP("platform", "p", "", "Target platform")
	assetCmd.Flags().StringP("output", "o", "", "Write content to file instead of stdout")
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().StringP("output", "o", "", "Write content to file instead of stdout")

	adminCmd.AddCommand(adminDeactivateCmd)
	adminDeactivateCmd.Flags().StringP("platform", "p", "", "Target platform (default universal)")
	adminCmd.AddCommand(adminDeleteCmd)
	adminDeleteCmd.Flags().StringP("platform", "p", "", "Target platform (default universal)")
	adminCmd.AddCommand(adminDeleteExtensionCmd)
	adminCmd.AddCommand(adminRenameCmd)
	adminCmd.AddCommand(adminDeactivatePublisherCmd)
	rootCmd.AddCommand(adminCmd)

	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRenewCmd)
	keysRenewCmd.Flags().Bool("resign", false, "Re-sign every active version with the new key")
	keysCmd.AddCommand(keysPublicKeyCmd)
	keysCmd.AddCommand(keysVerifyCmd)
	keysVerifyCmd.Flags().StringP("platform", "p", "", "Target platform (default universal)")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(verifyCmd)

	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(cacheCmd)
	storageCmd.AddCommand(storageValidateCmd)
	rootCmd.AddCommand(storageCmd)

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
