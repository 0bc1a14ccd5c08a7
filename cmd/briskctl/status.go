package briskctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one download's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := resolveID(st, args[0])
		if err != nil {
			return err
		}
		rec, ok := st.Get(id)
		if !ok {
			return fmt.Errorf("unknown download %s", id)
		}

		var progress float64
		if rec.TotalSize > 0 {
			progress = float64(rec.Downloaded) * 100 / float64(rec.TotalSize)
		}
		fmt.Printf("id:         %s\n", rec.ID)
		fmt.Printf("url:        %s\n", rec.SourceURL)
		fmt.Printf("filename:   %s\n", rec.Filename)
		fmt.Printf("path:       %s\n", rec.TargetPath)
		fmt.Printf("status:     %s\n", rec.Status)
		fmt.Printf("progress:   %.1f%% (%s / %s)\n", progress, humanBytes(rec.Downloaded), humanBytes(rec.TotalSize))
		fmt.Printf("resumable:  %v\n", rec.Resumable)
		fmt.Printf("chunks:     %d\n", len(rec.Chunks))
		if rec.Error != "" {
			fmt.Printf("error:      %s\n", rec.Error)
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(statusCmd) }
