package briskctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briskdl/engine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change persisted settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return err
		}
		fmt.Printf("download folder: %s\n", s.DefaultDownloadDir)
		fmt.Printf("connections:     %d\n", s.MaxConnections)
		fmt.Printf("speed limit:     %s/s\n", humanBytes(s.SpeedLimitBytesPerS))
		fmt.Printf("user agent:      %s\n", s.UserAgent)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a setting; connection count applies to future downloads only",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return err
		}

		if dir, _ := cmd.Flags().GetString("folder"); dir != "" {
			s.DefaultDownloadDir = dir
		}
		if conns, _ := cmd.Flags().GetInt("connections"); conns > 0 {
			s.MaxConnections = conns
		}
		if limit, _ := cmd.Flags().GetInt64("speed-limit"); cmd.Flags().Changed("speed-limit") {
			s.SpeedLimitBytesPerS = limit
		}

		if err := config.SaveSettings(s); err != nil {
			return err
		}
		fmt.Println("settings saved")
		return nil
	},
}

var configResetFolderCmd = &cobra.Command{
	Use:   "reset-folder",
	Short: "Reset the default download folder to the platform default",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return err
		}
		s.DefaultDownloadDir = config.DefaultSettings().DefaultDownloadDir
		if err := config.SaveSettings(s); err != nil {
			return err
		}
		fmt.Printf("download folder reset to %s\n", s.DefaultDownloadDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetFolderCmd)

	configSetCmd.Flags().String("folder", "", "default download folder")
	configSetCmd.Flags().Int("connections", 0, "default connection count")
	configSetCmd.Flags().Int64("speed-limit", 0, "bandwidth cap in bytes/sec (0 = unlimited)")
}
