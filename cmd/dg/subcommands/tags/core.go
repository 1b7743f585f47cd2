//
//  Copyright © Manetu Inc. All rights reserved.
//

package tags

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manetu/dataguard/cmd/dg/common"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/urfave/cli/v3"
)

// ExecuteShow prints the tags in effect on --resource, one per line, including inherited ones.
func ExecuteShow(_ context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	pe, err := common.NewCliPolicyEngine(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer pe.Close()

	path, err := pe.GetBackend().Snapshot().ParsePath(cmd.String("resource"))
	if err != nil {
		return err
	}

	for _, tag := range pe.TagsFor(path) {
		_, _ = fmt.Fprintln(out, tag)
	}
	return nil
}

// ExecuteBind adds a binding to the redis tag source.  Running engines pick it up on their next reload.
func ExecuteBind(ctx context.Context, cmd *cli.Command) error {
	resource := strings.Trim(cmd.String("resource"), "/")
	if _, err := types.ParsePath(resource, 1); err != nil {
		return err
	}
	tag := strings.TrimSpace(cmd.String("tag"))
	if tag == "" {
		return fmt.Errorf("tag must not be empty")
	}

	if err := config.Load(); err != nil {
		return err
	}
	addr := config.VConfig.GetString(config.TagsRedisAddr)
	if cmd.IsSet("redis-addr") {
		addr = cmd.String("redis-addr")
	}
	prefix := config.VConfig.GetString(config.TagsRedisPrefix)
	if cmd.IsSet("prefix") {
		prefix = cmd.String("prefix")
	}

	source := tags.NewRedisSourceFromAddr(addr, prefix)
	if err := source.Bind(ctx, resource, tag); err != nil {
		return fmt.Errorf("bind %s to %s at %s: %w", tag, resource, addr, err)
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, "bound %s to %s\n", tag, resource)
	return nil
}
