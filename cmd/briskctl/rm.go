package briskctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a terminal download from history",
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
			if !rec.Status.Terminal() {
				return fmt.Errorf("download %s is still %s; cancel it first", id, rec.Status)
			}
			st.Delete(id)
			fmt.Printf("removed %s\n", id)
			return st.Checkpoint()
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every terminal download from history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstanceLock(func() error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n := 0
			for _, rec := range st.List() {
				if rec.Status.Terminal() {
					st.Delete(rec.ID)
					n++
				}
			}
			fmt.Printf("removed %d downloads\n", n)
			return st.Checkpoint()
		})
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(clearCmd)
}
