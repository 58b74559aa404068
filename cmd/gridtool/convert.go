package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/hupe1980/gridstore"
)

func (t *toolT) runConvert(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()
	g, ref, err := t.load(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, g.Close(ctx)) }()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := gridstore.WriteASCII(ctx, out, g, ref); err != nil {
		return errors.CombineErrors(err, out.Close())
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %dx%d cells in %d chunks to %s\n",
		g.Rows(), g.Cols(), len(g.Chunks()), args[1])
	return nil
}
