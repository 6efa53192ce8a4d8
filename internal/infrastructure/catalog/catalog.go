package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/commission"
)

// Catalog is the commission configuration seeded at boot
type Catalog struct {
	Categories *commission.StaticCategoryTree
	Rules      []*command.UpsertCommissionRule
}

// catalogFile mirrors the YAML schema of the rules file
type catalogFile struct {
	Categories []struct {
		ID     string `yaml:"id"`
		Parent string `yaml:"parent"`
	} `yaml:"categories"`
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Reference   string `yaml:"reference"`
	ReferenceID string `yaml:"reference_id"`
	Active      *bool  `yaml:"active"`
	Rate        struct {
		Type           string            `yaml:"type"`
		PercentageRate string            `yaml:"percentage_rate"`
		IncludeTax     bool              `yaml:"include_tax"`
		FlatAmount     map[string]string `yaml:"flat_amount"`
		MinAmount      map[string]string `yaml:"min_amount"`
		MaxAmount      map[string]string `yaml:"max_amount"`
	} `yaml:"rate"`
}

// LoadFile reads a catalog from path. An empty path yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		tree, _ := commission.NewStaticCategoryTree(nil)
		return &Catalog{Categories: tree}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read commission catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse commission catalog: %w", err)
	}

	parents := make(map[string]string, len(file.Categories))
	for _, c := range file.Categories {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return nil, fmt.Errorf("category without id")
		}
		if _, dup := parents[id]; dup {
			return nil, fmt.Errorf("category %s declared twice", id)
		}
		parents[id] = strings.TrimSpace(c.Parent)
	}
	for id, parent := range parents {
		if _, ok := parents[parent]; parent != "" && !ok {
			return nil, fmt.Errorf("category %s has unknown parent %s", id, parent)
		}
	}
	tree, err := commission.NewStaticCategoryTree(parents)
	if err != nil {
		return nil, err
	}

	rules := make([]*command.UpsertCommissionRule, 0, len(file.Rules))
	seen := make(map[string]bool, len(file.Rules))
	for i, entry := range file.Rules {
		if entry.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required so reloads update the same rule", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("rule %s declared twice", entry.ID)
		}
		seen[entry.ID] = true

		cmd, err := entry.toCommand()
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", entry.ID, err)
		}
		rules = append(rules, cmd)
	}

	return &Catalog{Categories: tree, Rules: rules}, nil
}

func (e ruleEntry) toCommand() (*command.UpsertCommissionRule, error) {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	cmd := &command.UpsertCommissionRule{
		RuleID:      e.ID,
		Name:        e.Name,
		Reference:   e.Reference,
		ReferenceID: e.ReferenceID,
		IsActive:    active,
		Rate: command.RateInput{
			Type:       aggregate.RateType(e.Rate.Type),
			IncludeTax: e.Rate.IncludeTax,
		},
	}

	if e.Rate.PercentageRate != "" {
		pct, err := decimal.NewFromString(e.Rate.PercentageRate)
		if err != nil {
			return nil, fmt.Errorf("percentage_rate: %w", err)
		}
		cmd.Rate.PercentageRate = &pct
	}

	var err error
	if cmd.Rate.FlatAmount, err = amounts("flat_amount", e.Rate.FlatAmount); err != nil {
		return nil, err
	}
	if cmd.Rate.MinAmount, err = amounts("min_amount", e.Rate.MinAmount); err != nil {
		return nil, err
	}
	if cmd.Rate.MaxAmount, err = amounts("max_amount", e.Rate.MaxAmount); err != nil {
		return nil, err
	}
	return cmd, nil
}

func amounts(field string, in map[string]string) (map[string]decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for currency, value := range in {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", field, currency, err)
		}
		out[aggregate.NormalizeCurrency(currency)] = d
	}
	return out, nil
}

// RuleUpserter stores a rule
type RuleUpserter interface {
	UpsertRule(ctx context.Context, cmd *command.UpsertCommissionRule) (*query.RuleReadModel, error)
}

// Seed upserts every catalog rule. Unchanged rules keep their rate version.
func Seed(ctx context.Context, upserter RuleUpserter, c *Catalog, logger *zap.Logger) error {
	for _, rule := range c.Rules {
		if _, err := upserter.UpsertRule(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.RuleID, err)
		}
	}
	logger.Info("commission catalog seeded", zap.Int("rules", len(c.Rules)))
	return nil
}
