package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

type cmdContext struct {
	runtimeFlags
	Fixture string `long:"fixture" required:"true" description:"Path to a JSON /context fixture"`
}

func (cmd cmdContext) Execute(_ []string) error {
	var r, rErr = cmd.resolve()
	if rErr != nil {
		return rErr
	}

	log.WithFields(log.Fields{"fixture": cmd.Fixture, "store": r.storeDSN}).Info("timelinefill context")

	var fixture contextFixture
	if err := loadFixture(cmd.Fixture, &fixture); err != nil {
		return err
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

	var result, wErr = writer.WriteContext(ctx, fixture.RoomID, fixture.Response)
	if wErr != nil {
		_ = txn.Rollback()
		return fmt.Errorf("writing context: %w", wErr)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	if result.ContextEvent != nil && len(result.Entries) != 0 {
		color.New(color.FgGreen).Printf("context event %s stored, %d total entries\n",
			result.ContextEvent.Entry.Event.EventID, len(result.Entries))
	} else {
		color.New(color.FgYellow).Println("context event was already present, no new entries")
	}
	return nil
}
