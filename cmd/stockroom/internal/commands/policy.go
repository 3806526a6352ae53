package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/stockroom/pkg/config"
	"github.com/platinummonkey/stockroom/pkg/rbac"
)

// PolicyCmd groups the policy subcommands
type PolicyCmd struct {
	Show  PolicyShowCmd  `cmd:"" help:"Print the effective role policies as YAML."`
	Check PolicyCheckCmd `cmd:"" help:"Validate a policy file."`
}

// PolicyShowCmd prints the built-in policies or those of a file
type PolicyShowCmd struct {
	File string `help:"Policy file; defaults to STOCKROOM_POLICY_FILE or the built-in policies." type:"existingfile"`
}

func (p *PolicyShowCmd) Run(ctx context.Context, globals *Globals) error {
	path := p.File
	if path == "" {
		if globals.EnvFile != "" {
			if err := config.LoadEnvFile(globals.EnvFile); err != nil {
				return err
			}
		}
		path = os.Getenv("STOCKROOM_POLICY_FILE")
	}

	store := rbac.NewBuiltInPolicyStore()
	if path != "" {
		var err error
		if store, err = rbac.LoadPolicyFile(path); err != nil {
			return err
		}
	}
	return store.WriteYAML(os.Stdout)
}

// PolicyCheckCmd validates a policy file
type PolicyCheckCmd struct {
	File string `arg:"" help:"Policy file." type:"existingfile"`
}

func (p *PolicyCheckCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := rbac.LoadPolicyFile(p.File)
	if err != nil {
		return err
	}
	for _, role := range store.Roles() {
		perms, err := store.PermissionsFor(role)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d permissions\n", role, len(perms))
	}
	return nil
}
