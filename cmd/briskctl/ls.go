package briskctl

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		if !watch {
			return printDownloads(jsonOut)
		}
		for {
			fmt.Print("\033[H\033[2J")
			if err := printDownloads(jsonOut); err != nil {
				return err
			}
			time.Sleep(time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("json", false, "print as JSON")
	lsCmd.Flags().Bool("watch", false, "refresh every second")
}

type row struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	TotalSize  int64   `json:"total_size"`
	Downloaded int64   `json:"downloaded"`
}

func printDownloads(jsonOut bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	records := st.List()
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		var progress float64
		if rec.TotalSize > 0 {
			progress = float64(rec.Downloaded) * 100 / float64(rec.TotalSize)
		}
		rows = append(rows, row{
			ID:         string(rec.ID),
			Filename:   rec.Filename,
			Status:     string(rec.Status),
			Progress:   progress,
			TotalSize:  rec.TotalSize,
			Downloaded: rec.Downloaded,
		})
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tPROGRESS\tSIZE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n", shortID(r.ID), r.Filename, r.Status, r.Progress, humanBytes(r.TotalSize))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
