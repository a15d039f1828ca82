package syncapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/notification"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// Outcome is what the sync rule did with one change.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeSkippedEcho Outcome = "skipped-echo"
	OutcomeSkippedOld  Outcome = "skipped-not-newer"
)

// change is one source record on its way to the other system.
type change struct {
	name             string
	fields           record.Record
	lastModified     time.Time
	lastModifiedByID string
}

func changeFromAccount(a org.Account) change {
	return change{
		name:             a.Name(),
		fields:           a.Fields.Record(),
		lastModified:     a.LastModifiedDate,
		lastModifiedByID: a.LastModifiedByID,
	}
}

func changeFromNotification(n notification.Notification) (change, error) {
	lmd, err := n.LastModifiedDate()
	if err != nil {
		return change{}, err
	}
	return change{
		name:             n.Name(),
		fields:           n.Writable(),
		lastModified:     lmd,
		lastModifiedByID: n.LastModifiedByID(),
	}, nil
}

// Apply runs the last-modified-wins rule for one change from source:
//  1. changes made by the source's integration user are echoes and skipped
//  2. the target record is matched by Name
//  3. a missing target is created; an older target is updated; a target
//     modified at the same time or later is left alone
//
// Writes are stamped with the target's integration user. A created
// record is emitted on the running job as (target system, id).
func (t *Template) apply(ctx context.Context, source org.System, c change) (Outcome, error) {
	if c.lastModifiedByID == t.IntegrationUser(source) {
		return OutcomeSkippedEcho, nil
	}
	if c.name == "" {
		return "", fmt.Errorf("change from %s has no Name", source)
	}

	targetSystem := source.Other()
	target := t.orgs[targetSystem]
	writer := t.IntegrationUser(targetSystem)

	existing, found, err := target.Find(ctx, record.Fields{record.FieldName: c.name})
	if err != nil {
		return "", err
	}

	if !found {
		results, err := target.Create(ctx, []record.Record{c.fields}, writer)
		if err != nil {
			return "", err
		}
		if len(results) == 0 || !results[0].Success {
			var reasons []string
			if len(results) > 0 {
				reasons = results[0].Errors
			}
			return "", fmt.Errorf("create %q in %s: %s", c.name, targetSystem, strings.Join(reasons, "; "))
		}
		batch.Emit(ctx, string(targetSystem), results[0].ID)
		return OutcomeCreated, nil
	}

	if !c.lastModified.After(existing.LastModifiedDate) {
		return OutcomeSkippedOld, nil
	}
	if err := target.Update(ctx, existing.ID, c.fields, writer); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

// submit starts a sync job applying every change from source. The job is
// started even when there are no changes.
func (t *Template) submit(name string, source org.System, changes []change) *batch.Job {
	return batch.Submit(t.engine, name, changes, func(ctx context.Context, c change) error {
		outcome, err := t.apply(ctx, source, c)
		if err != nil {
			return fmt.Errorf("sync %q from %s: %w", c.name, source, err)
		}
		t.logger.Debug("account synced",
			"job", name,
			"source", string(source),
			"name", c.name,
			"outcome", string(outcome),
		)
		return nil
	})
}
