package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/playsink/playsink/internal/classifier"
)

var classifyCmd = &cobra.Command{
	Use:   "classify URL [URL...]",
	Short: "Classify stream URLs",
	Long: `Classify one or more stream URLs by container and protocol. Pure
string inspection; no network access.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	for _, url := range args {
		desc := classifier.Classify(url)
		fmt.Printf("%s\tkind=%s\tcategory=%s\n", url, desc.Kind, desc.Category)
	}
	return nil
}
