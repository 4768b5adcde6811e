package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playsink/playsink/internal/classifier"
	"github.com/playsink/playsink/internal/media"
)

var probeCmd = &cobra.Command{
	Use:   "probe URL",
	Short: "Probe a stream without playing it",
	Long: `Classify a stream URL and extract a descriptive media snapshot from a
bounded prefix of the source. Adaptive manifests are classified only;
their media details come from the manifest at playback time.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

type probeResult struct {
	URL      string           `json:"url"`
	Kind     string           `json:"kind"`
	Category string           `json:"category"`
	Media    *media.MediaInfo `json:"media,omitempty"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg)

	url := args[0]
	desc := classifier.Classify(url)

	result := probeResult{
		URL:      url,
		Kind:     desc.Kind.String(),
		Category: desc.Category.String(),
	}

	if desc.Category != media.CategoryLive {
		rt, err := buildRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.close()

		info, err := rt.pipeline.Probe(cmd.Context(), url, desc.Kind)
		if err != nil {
			return fmt.Errorf("probing: %w", err)
		}
		result.Media = info
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
