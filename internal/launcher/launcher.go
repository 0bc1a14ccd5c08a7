// Package launcher hands a completed download's file off to the host OS,
// grounded on the teacher's tui.openBrowser GOOS switch (internal/tui/update.go)
// generalized from "open a URL" to "open a file" / "reveal a file in its
// folder".
package launcher

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/briskdl/engine/internal/types"
)

// OpenFile launches path with the OS's default handler for its file type.
func OpenFile(path string) error {
	cmd, err := openCommand(path)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// ShowInFolder opens path's containing directory in the OS's file manager,
// selecting the file where the platform supports it.
func ShowInFolder(path string) error {
	cmd, err := revealCommand(path)
	if err != nil {
		return err
	}
	return cmd.Start()
}

func openCommand(path string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path), nil
	case "linux":
		return exec.Command("xdg-open", path), nil
	default:
		return nil, types.NewError(types.KindUnsupportedPlatform, fmt.Errorf("no file launcher for GOOS %q", runtime.GOOS))
	}
}

func revealCommand(path string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", "-R", path), nil
	case "windows":
		return exec.Command("explorer", "/select,"+path), nil
	case "linux":
		// No universal "select this file" verb across Linux file managers;
		// opening the containing directory is the common denominator.
		return exec.Command("xdg-open", filepath.Dir(path)), nil
	default:
		return nil, types.NewError(types.KindUnsupportedPlatform, fmt.Errorf("no folder launcher for GOOS %q", runtime.GOOS))
	}
}
