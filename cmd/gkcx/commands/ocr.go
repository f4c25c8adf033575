package commands

import (
	"fmt"
	"os"

	"github.com/sankforever/gkcx/lib/ocr"
	"github.com/sankforever/gkcx/lib/serviceutil"
	"github.com/sankforever/gkcx/services/poller"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ocrCmd)
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Runs the configured ocr provider on a captcha image and prints the normalized code.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		err = config.validateOcr()
		if err != nil {
			serviceutil.Fatal("invalid ocr config", err)
		}

		image, err := os.ReadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read image", err)
		}

		provider, err := newOcrProvider(config)
		if err != nil {
			serviceutil.Fatal("failed to create ocr provider", err)
		}

		candidates, err := provider.Recognize(cmd.Context(), image)
		if err != nil {
			serviceutil.Fatal("ocr failed", err)
		}
		if len(candidates) == 0 {
			serviceutil.Fatal("ocr failed", ocr.ErrNoResult)
		}
		for i, c := range candidates {
			fmt.Fprintf(cmd.ErrOrStderr(), "candidate %d: %q\n", i, c)
		}

		code, err := poller.Normalize(candidates[0])
		if err != nil {
			serviceutil.Fatal("no usable code", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
	},
}
