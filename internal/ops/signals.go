package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/signal"
)

// SignalInput is one measurement to import. A nil Value marks the key as
// not measured: any stored value for it is cleared.
type SignalInput struct {
	Entity string   `json:"entity,omitempty"` // kind:id; empty means the project entity
	Key    string   `json:"key"`
	Value  *float64 `json:"value"`
}

// ImportSignalsInput contains parameters for the ImportSignals operation.
type ImportSignalsInput struct {
	ProjectID string
	Signals   []SignalInput
	// Replace drops existing signals of every entity in the batch first, so
	// the batch becomes each entity's complete snapshot.
	Replace bool
}

// ImportSignalsOutput contains the result of the ImportSignals operation.
type ImportSignalsOutput struct {
	ProjectID string `json:"project_id"`
	Imported  int    `json:"imported"`
	Cleared   int    `json:"cleared"`
	Entities  int    `json:"entities"`
}

// ImportSignals validates a batch and writes it to the local signal store.
// Any invalid signal rejects the whole batch.
func ImportSignals(ctx context.Context, deps *Deps, input ImportSignalsInput) (*ImportSignalsOutput, error) {
	if strings.TrimSpace(input.ProjectID) == "" {
		return nil, errors.NewInvalidRequest("project_id is required")
	}
	if len(input.Signals) == 0 {
		return nil, errors.NewInvalidRequest("signals must not be empty")
	}

	// Later entries for the same entity and key win.
	type slot struct {
		ref signal.EntityRef
		key string
	}
	final := make(map[slot]*float64, len(input.Signals))
	order := make([]slot, 0, len(input.Signals))
	touched := make(map[signal.EntityRef]bool)
	for _, in := range input.Signals {
		ref, err := resolveEntity(input.ProjectID, in.Entity)
		if err != nil {
			return nil, err
		}
		if in.Value == nil {
			if err := signal.ValidateValue(in.Key, 0); err != nil {
				return nil, err
			}
		}
		k := slot{ref: ref, key: in.Key}
		if _, seen := final[k]; !seen {
			order = append(order, k)
		}
		final[k] = in.Value
		touched[ref] = true
	}

	var batch signal.Batch
	var cleared []signal.Signal
	for _, k := range order {
		if v := final[k]; v != nil {
			batch = append(batch, signal.Signal{Key: k.key, Value: *v, Scope: k.ref})
		} else {
			cleared = append(cleared, signal.Signal{Key: k.key, Scope: k.ref})
		}
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	now := deps.now().Unix()
	err := db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		if input.Replace {
			for ref := range touched {
				if err := db.DeleteEntitySignals(ctx, tx, ref); err != nil {
					return err
				}
			}
		}
		for _, s := range cleared {
			if err := db.DeleteSignal(ctx, tx, s.Scope, s.Key); err != nil {
				return err
			}
		}
		return db.UpsertSignals(ctx, tx, batch, now)
	})
	if err != nil {
		return nil, err
	}

	deps.Logger.Info("signals imported",
		"project_id", input.ProjectID, "signals", len(batch), "cleared", len(cleared),
		"entities", len(touched), "replace", input.Replace)

	return &ImportSignalsOutput{
		ProjectID: input.ProjectID,
		Imported:  len(batch),
		Cleared:   len(cleared),
		Entities:  len(touched),
	}, nil
}

// SetApplicabilityInput contains parameters for the SetApplicability operation.
type SetApplicabilityInput struct {
	ProjectID string
	Pillar    string
	Status    string
	Reasons   []string
}

// SetApplicabilityOutput contains the result of the SetApplicability operation.
type SetApplicabilityOutput struct {
	ProjectID string                       `json:"project_id"`
	Pillar    signal.PillarID              `json:"pillar"`
	Decision  signal.ApplicabilityDecision `json:"decision"`
}

// SetApplicability records whether a pillar applies to a project. A pillar
// marked not_applicable stops contributing to scores and issues.
func SetApplicability(ctx context.Context, deps *Deps, input SetApplicabilityInput) (*SetApplicabilityOutput, error) {
	if strings.TrimSpace(input.ProjectID) == "" {
		return nil, errors.NewInvalidRequest("project_id is required")
	}
	pillar, err := signal.ParsePillarID(input.Pillar)
	if err != nil {
		return nil, err
	}
	status, err := signal.ParseApplicabilityStatus(input.Status)
	if err != nil {
		return nil, err
	}

	d := signal.ApplicabilityDecision{Status: status}
	for _, r := range input.Reasons {
		if r = strings.TrimSpace(r); r != "" {
			d.Reasons = append(d.Reasons, signal.ReasonCode(r))
		}
	}

	if err := db.SetApplicability(ctx, deps.DB, input.ProjectID, pillar, d, deps.now().Unix()); err != nil {
		return nil, err
	}

	deps.Logger.Info("applicability set", "project_id", input.ProjectID, "pillar", pillar, "status", status)

	return &SetApplicabilityOutput{ProjectID: input.ProjectID, Pillar: pillar, Decision: d}, nil
}

// SetLiveFieldInput contains parameters for the SetLiveField operation.
type SetLiveFieldInput struct {
	Target
	Value string
}

// SetLiveFieldOutput contains the result of the SetLiveField operation.
type SetLiveFieldOutput struct {
	Target
	Value string `json:"value"`
}

// SetLiveField records the current catalog value of a field group, as
// synced from the storefront. It is how live content enters the local store;
// drafts change it only through ApplyDraft.
func SetLiveField(ctx context.Context, deps *Deps, input SetLiveFieldInput) (*SetLiveFieldOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	if err := db.SetLiveField(ctx, deps.DB, ref, fieldGroup, input.Value, deps.now().Unix()); err != nil {
		return nil, err
	}
	return &SetLiveFieldOutput{
		Target: Target{ProjectID: ref.ProjectID, Entity: ref.String(), FieldGroup: fieldGroup},
		Value:  input.Value,
	}, nil
}
