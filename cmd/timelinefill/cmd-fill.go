package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

type cmdFill struct {
	runtimeFlags
	Fixture string `long:"fixture" required:"true" description:"Path to a JSON /messages fill fixture"`
}

func (cmd cmdFill) Execute(_ []string) error {
	var r, rErr = cmd.resolve()
	if rErr != nil {
		return rErr
	}

	log.WithFields(log.Fields{"fixture": cmd.Fixture, "store": r.storeDSN}).Info("timelinefill fill")

	var fixture fillFixture
	if err := loadFixture(cmd.Fixture, &fixture); err != nil {
		return err
	}
	var dir, ok = timeline.FromAPIString(fixture.Direction)
	if !ok {
		return fmt.Errorf("fixture direction must be \"f\" or \"b\", got %q", fixture.Direction)
	}

	var ctx = context.Background()
	if srv := r.startMetricsServer(); srv != nil {
		defer srv.Stop(ctx)
	}
	var store, txn, writer, err = openEngine(ctx, r)
	if err != nil {
		return err
	}
	defer store.Close()

	var result, wErr = writer.WriteFragmentFill(ctx, fixture.RoomID, fixture.FragmentID, dir, fixture.Response)
	if wErr != nil {
		_ = txn.Rollback()
		return fmt.Errorf("writing fragment fill: %w", wErr)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	color.New(color.FgGreen).Printf("stored %d entries across %d changed fragments\n",
		len(result.Entries), len(result.Fragments))
	return nil
}
