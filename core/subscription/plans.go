package subscription

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// planCatalog is the YAML document loaded by LoadPlans:
//
//	plans:
//	  - name: Basic
//	    interval: month
//	    price: "19.99"
//	    currency: USD
type planCatalog struct {
	Plans []catalogPlan `yaml:"plans"`
}

type catalogPlan struct {
	PlanInput `yaml:",inline"`
	Price     string `yaml:"price"`
}

// LoadResult lists the plan names created and updated by LoadPlans.
type LoadResult struct {
	Created []string
	Updated []string
}

// ParsePlans decodes and validates a YAML plan catalog.
func ParsePlans(r io.Reader) ([]PlanInput, error) {
	var cat planCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, errors.Wrap(err, "decoding plan catalog")
	}

	seen := make(map[string]bool, len(cat.Plans))
	inputs := make([]PlanInput, 0, len(cat.Plans))
	for i, cp := range cat.Plans {
		pi := cp.PlanInput
		price, err := decimal.NewFromString(cp.Price)
		if err != nil {
			return nil, errors.Errorf("plans[%d].price: invalid amount %q", i, cp.Price)
		}
		pi.Price = price
		if err = pi.Validate(); err != nil {
			return nil, errors.Wrapf(err, "plans[%d]", i)
		}
		if seen[pi.Name] {
			return nil, errors.Errorf("plans[%d].name: duplicate plan %q", i, pi.Name)
		}
		seen[pi.Name] = true
		inputs = append(inputs, pi)
	}
	return inputs, nil
}

// LoadPlans upserts the plans of a YAML catalog, matching existing plans by name.
func (svc *Service) LoadPlans(ctx context.Context, r io.Reader) (LoadResult, error) {
	var res LoadResult
	inputs, err := ParsePlans(r)
	if err != nil {
		return res, err
	}

	for _, pi := range inputs {
		existing, err := svc.repo.GetPlanByName(ctx, pi.Name)
		switch {
		case err == nil:
			if _, err = svc.UpdatePlan(ctx, existing, pi); err != nil {
				return res, errors.Wrap(err, fmt.Sprintf("updating plan %q", pi.Name))
			}
			res.Updated = append(res.Updated, pi.Name)
		case errors.Cause(err) == ErrPlanNotFound:
			if _, err = svc.CreatePlan(ctx, pi); err != nil {
				return res, errors.Wrap(err, fmt.Sprintf("creating plan %q", pi.Name))
			}
			res.Created = append(res.Created, pi.Name)
		default:
			return res, errors.Wrap(err, "finding plan by name")
		}
	}
	return res, nil
}
