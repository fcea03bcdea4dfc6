package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// コンポジション ID
const (
	CompositionPost  = "InstagramPost"
	CompositionStory = "InstagramStory"
)

// Compositor はテンプレートエンジンの呼び出しを抽象化します。
type Compositor interface {
	Still(ctx context.Context, composition string, props any, output string) error
	Render(ctx context.Context, composition string, props any, output string) error
}

// RemotionCLI は Remotion の CLI をサブプロセスとして実行します。
type RemotionCLI struct {
	Binary string
	Entry  string
}

// Still implements Compositor.
func (r RemotionCLI) Still(ctx context.Context, composition string, props any, output string) error {
	return r.run(ctx, "still", composition, props, output, "--image-format=jpeg", "--jpeg-quality=90")
}

// Render implements Compositor.
func (r RemotionCLI) Render(ctx context.Context, composition string, props any, output string) error {
	return r.run(ctx, "render", composition, props, output, "--codec=h264")
}

func (r RemotionCLI) run(ctx context.Context, command, composition string, props any, output string, extra ...string) error {
	propsPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".props.json"
	body, err := json.Marshal(props)
	if err != nil {
		return newError("INTERNAL_ERROR", "failed to encode composition props", err)
	}
	if err := os.WriteFile(propsPath, body, 0o644); err != nil {
		return newError("INTERNAL_ERROR", "failed to write composition props", err)
	}
	defer os.Remove(propsPath)

	cmd := exec.CommandContext(ctx, r.Binary, r.args(command, composition, output, propsPath, extra)...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError("RENDER_TIMEOUT", fmt.Sprintf("%s %s did not finish in time", command, composition), ctxErr)
		}
		return newError("RENDER_FAILED", fmt.Sprintf("remotion %s failed: %s", command, tail(stderr.String(), 2000)), err)
	}
	return nil
}

func (r RemotionCLI) args(command, composition, output, propsPath string, extra []string) []string {
	var args []string
	if filepath.Base(r.Binary) == "npx" {
		args = append(args, "remotion")
	}
	args = append(args, command, r.Entry, composition, output, "--props="+propsPath)
	return append(args, extra...)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
