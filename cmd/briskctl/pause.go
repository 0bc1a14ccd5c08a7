package briskctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briskdl/engine/internal/types"
)

// pauseCmd updates the store directly since, in this single-process model,
// a download only runs for the lifetime of the `fetch` invocation that
// started it: by the time a separate `pause` invocation runs, the engine
// has already persisted a Paused/Downloading snapshot to the store.
// Grounded on the teacher's cmd/pause.go "offline mode" branch; the
// "send to running server" branch has no counterpart here since there is
// no server transport in scope.
var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Mark a download paused so `resume` continues it from its last chunk snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstanceLock(func() error {
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
			if rec.Status.Terminal() {
				return fmt.Errorf("download %s is already %s", id, rec.Status)
			}
			rec.Status = types.StatusPaused
			st.Put(rec)
			fmt.Printf("paused %s\n", id)
			return st.Checkpoint()
		})
	},
}

func init() { rootCmd.AddCommand(pauseCmd) }
