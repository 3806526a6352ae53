package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/inventory"
)

// SeedCmd provisions data through the administrative channel. Every write
// is audited with the system actor.
type SeedCmd struct {
	File string `arg:"" help:"Seed YAML file." type:"existingfile"`
}

func (s *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}

	data, err := inventory.LoadSeedFile(s.File)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	provisioner := inventory.NewProvisioner(a.repo, a.recorder, logger)
	summary, err := provisioner.Seed(ctx, data)
	logger.WithFields(logrus.Fields{
		"organizations": summary.Organizations,
		"users":         summary.Users,
		"warehouses":    summary.Warehouses,
		"items":         summary.Items,
	}).Info("Seed finished")
	if err != nil {
		return fmt.Errorf("seed stopped: %w", err)
	}
	return nil
}
