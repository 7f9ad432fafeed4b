package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/store"
)

// Shooter captures one screenshot to path.
type Shooter interface {
	Shoot(ctx context.Context, path string) error
}

// CommandShooter runs a screenshot tool (scrot, grim) with the output path
// appended as the final argument.
type CommandShooter struct {
	Name string
	Args []string
}

// NewCommandShooter builds a shooter from a command vector, nil when empty.
func NewCommandShooter(cmd []string) *CommandShooter {
	if len(cmd) == 0 {
		return nil
	}
	return &CommandShooter{Name: cmd[0], Args: cmd[1:]}
}

func (s *CommandShooter) Shoot(ctx context.Context, path string) error {
	args := append(append([]string{}, s.Args...), path)
	if out, err := exec.CommandContext(ctx, s.Name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.Name, err, bytes.TrimSpace(out))
	}
	return nil
}

// SyntheticShooter writes a small gray PNG, used when no screenshot tool is
// configured.
type SyntheticShooter struct{}

func (SyntheticShooter) Shoot(_ context.Context, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// TakeScreenshot captures one screenshot into the artifact store and
// broadcasts it.
func TakeScreenshot(ctx context.Context, sh Shooter, b *bus.Bus, artifacts *store.Artifacts) (store.FileInfo, error) {
	path := artifacts.NewScreenshotPath(time.Now())
	if err := sh.Shoot(ctx, path); err != nil {
		return store.FileInfo{}, err
	}

	info := store.FileInfo{
		Filename: filepath.Base(path),
		Path:     path,
		Created:  bus.NowTS(),
	}
	if fi, err := os.Stat(path); err == nil {
		info.Size = fi.Size()
	}

	b.Publish(bus.TypeScreenshotCaptured, bus.ScreenshotInfo{
		Filename: info.Filename,
		Path:     info.Path,
	})
	return info, nil
}
