package inventory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// SeedData is the document accepted by Seed
//
//	organizations:
//	  - id: org1
//	    name: Acme
//	    users:
//	      - {id: user1, name: Alice, role: manager}
//	    warehouses:
//	      - id: wh1
//	        name: Main
//	        location: Berlin
//	        items:
//	          - {name: Widget, sku: SKU001, quantity: 10}
type SeedData struct {
	Organizations []SeedOrganization `yaml:"organizations"`
}

// SeedOrganization is one organization with its users and warehouses
type SeedOrganization struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Users      []models.User   `yaml:"users"`
	Warehouses []SeedWarehouse `yaml:"warehouses"`
}

// SeedWarehouse is one warehouse with its items
type SeedWarehouse struct {
	ID       string                 `yaml:"id"`
	Name     string                 `yaml:"name"`
	Location string                 `yaml:"location"`
	Items    []models.InventoryItem `yaml:"items"`
}

// SeedSummary counts what Seed created
type SeedSummary struct {
	Organizations int
	Users         int
	Warehouses    int
	Items         int
}

// ParseSeed decodes a seed document
func ParseSeed(r io.Reader) (*SeedData, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var data SeedData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return &data, nil
}

// LoadSeedFile reads a seed document from path
func LoadSeedFile(path string) (*SeedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// Seed provisions every organization in data in document order. It stops at
// the first failure; entities created before it are kept.
func (p *Provisioner) Seed(ctx context.Context, data *SeedData) (SeedSummary, error) {
	var summary SeedSummary
	for _, so := range data.Organizations {
		org, err := p.CreateOrganization(ctx, &models.Organization{ID: so.ID, Name: so.Name})
		if err != nil {
			return summary, fmt.Errorf("organization %q: %w", so.Name, err)
		}
		summary.Organizations++

		for i := range so.Users {
			if _, err := p.CreateUser(ctx, org.ID, &so.Users[i]); err != nil {
				return summary, fmt.Errorf("user %q: %w", so.Users[i].Name, err)
			}
			summary.Users++
		}

		for _, sw := range so.Warehouses {
			wh, err := p.CreateWarehouse(ctx, org.ID, &models.Warehouse{ID: sw.ID, Name: sw.Name, Location: sw.Location})
			if err != nil {
				return summary, fmt.Errorf("warehouse %q: %w", sw.Name, err)
			}
			summary.Warehouses++

			for i := range sw.Items {
				item := sw.Items[i]
				item.WarehouseID = wh.ID
				if _, err := p.CreateItem(ctx, org.ID, &item); err != nil {
					return summary, fmt.Errorf("item %q: %w", item.SKU, err)
				}
				summary.Items++
			}
		}

		p.logger.WithFields(logrus.Fields{
			"organization_id": org.ID,
			"users":           len(so.Users),
			"warehouses":      len(so.Warehouses),
		}).Info("Seeded organization")
	}
	return summary, nil
}
