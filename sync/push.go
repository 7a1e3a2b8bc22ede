// ABOUTME: Outbound push of local contacts to one external system
// ABOUTME: Every create first passes the dedup-on-create guard
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type pushKind int

const (
	pushCreate pushKind = iota
	pushUpdate
)

type pushJob struct {
	key        string // normalized email
	contactID  uuid.UUID
	kind       pushKind
	externalID string // update target
	fields     models.ContactFields
}

type pushOutcome int

const (
	outcomeSkipped pushOutcome = iota
	outcomeCreated
	outcomeAdopted
	outcomeUpdated
	outcomeFailed
)

type pushResult struct {
	job        pushJob
	outcome    pushOutcome
	externalID string
	err        error
}

// dedupGuard finds an existing remote record for an email before a create.
type dedupGuard interface {
	find(ctx context.Context, email string) (*connector.RemoteRecord, error)
}

type lookupGuard struct {
	lookup connector.EmailLookup
}

func (g lookupGuard) find(ctx context.Context, email string) (*connector.RemoteRecord, error) {
	return g.lookup.FindByEmail(ctx, email)
}

// listGuard re-lists the system once and answers every lookup from that list.
type listGuard struct {
	conn  connector.Connector
	once  sync.Once
	index map[string]connector.RemoteRecord
	err   error
}

func (g *listGuard) find(ctx context.Context, email string) (*connector.RemoteRecord, error) {
	g.once.Do(func() {
		records, err := g.conn.List(ctx)
		if err != nil {
			g.err = err
			return
		}
		g.index = make(map[string]connector.RemoteRecord, len(records))
		for _, r := range records {
			g.index[models.NormalizeEmail(r.Email)] = r
		}
	})
	if g.err != nil {
		return nil, g.err
	}
	if r, ok := g.index[models.NormalizeEmail(email)]; ok {
		return &r, nil
	}
	return nil, nil
}

type pusher struct {
	engine *Engine
	system string
	conn   connector.Connector
	guard  dedupGuard
}

func newPusher(e *Engine, conn connector.Connector) *pusher {
	p := &pusher{engine: e, system: conn.Name(), conn: conn}
	if lookup, ok := conn.(connector.EmailLookup); ok {
		p.guard = lookupGuard{lookup: lookup}
	} else {
		p.guard = &listGuard{conn: conn}
	}
	return p
}

func (p *pusher) push(ctx context.Context, job pushJob) pushResult {
	result := pushResult{job: job}

	if job.kind == pushUpdate {
		err := p.engine.call(ctx, p.system, "update", func(ctx context.Context) error {
			return p.conn.Update(ctx, job.externalID, job.fields)
		})
		if err != nil {
			result.outcome, result.err = outcomeFailed, err
			return result
		}
		result.outcome, result.externalID = outcomeUpdated, job.externalID
		return result
	}

	var existing *connector.RemoteRecord
	err := p.engine.call(ctx, p.system, "lookup", func(ctx context.Context) error {
		var err error
		existing, err = p.guard.find(ctx, job.fields.Email)
		return err
	})
	if err != nil {
		result.outcome, result.err = outcomeFailed, err
		return result
	}
	if existing != nil {
		result.outcome, result.externalID = outcomeAdopted, existing.ExternalID
		return result
	}

	var id string
	err = p.engine.call(ctx, p.system, "create", func(ctx context.Context) error {
		var err error
		id, err = p.conn.Create(ctx, job.fields)
		return err
	})
	if err != nil {
		result.outcome, result.err = outcomeFailed, err
		return result
	}
	result.outcome, result.externalID = outcomeCreated, id
	return result
}

// pushAll runs jobs with bounded concurrency. The first unavailable error
// stops the remaining jobs and is returned; other failures stay per-job.
func (p *pusher) pushAll(ctx context.Context, jobs []pushJob, limit int) ([]pushResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]pushResult, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = pushResult{job: job, outcome: outcomeSkipped}
				return nil
			}
			results[i] = p.push(gctx, job)
			if connector.IsUnavailable(results[i].err) {
				p.engine.logger.Warn("System unavailable during push, stopping",
					zap.String("system", p.system),
					zap.Error(results[i].err),
				)
				return results[i].err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// gainedLink is an external id a push attached to a contact.
type gainedLink struct {
	system     string
	externalID string
	// created is set when the push created the remote record.
	created bool
}

// pushContact sends the stored contact to every system of session: linked
// systems get an update, unlinked ones the guarded create. The caller holds
// the tenant lease.
func (e *Engine) pushContact(ctx context.Context, session *connector.Session, tenantID string, id uuid.UUID) (*PushReport, error) {
	report := &PushReport{Failures: make(map[string]string)}

	contact, err := e.store.GetContact(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload contact: %w", err)
	}
	if contact == nil || contact.Deleted {
		return report, nil
	}

	logger := e.logger.With(zap.String("tenant", tenantID), zap.String("contact_id", id.String()))
	var gained []gainedLink

	for _, system := range session.Systems() {
		conn, ok := session.Get(system)
		if !ok {
			report.Failures[system] = session.Failed[system].Error()
			continue
		}

		job := pushJob{key: contact.NormalizedEmail(), contactID: contact.ID, kind: pushCreate, fields: contact.Fields()}
		if externalID, linked := contact.ExternalID(system); linked {
			job.kind, job.externalID = pushUpdate, externalID
		}

		res := newPusher(e, conn).push(ctx, job)
		switch res.outcome {
		case outcomeCreated:
			gained = append(gained, gainedLink{system: system, externalID: res.externalID, created: true})
			report.Created = append(report.Created, system)
		case outcomeAdopted:
			owner, err := e.store.FindActiveByExternalID(ctx, tenantID, system, res.externalID)
			if err != nil {
				return nil, fmt.Errorf("failed to check link owner: %w", err)
			}
			if owner != nil && owner.ID != contact.ID {
				report.Failures[system] = fmt.Sprintf("remote record %s is linked to another contact", res.externalID)
				continue
			}
			gained = append(gained, gainedLink{system: system, externalID: res.externalID})
			report.Linked = append(report.Linked, system)
		case outcomeUpdated:
			report.Updated = append(report.Updated, system)
		case outcomeFailed:
			logger.Warn("Contact push failed", zap.String("system", system), zap.Error(res.err))
			report.Failures[system] = res.err.Error()
		}
	}

	if len(gained) == 0 {
		return report, nil
	}
	if _, err := e.saveLinks(ctx, session, contact, gained); err != nil {
		if !isConflict(err) {
			return nil, fmt.Errorf("failed to save links: %w", err)
		}
		report.Failures[models.SystemLocal] = err.Error()
	}
	return report, nil
}

// saveLinks stores the links a push gained on contact and returns the stored
// contact. When contact is stale the links are applied to a fresh read. When
// the contact was deleted meanwhile, the remote records created for it are
// deleted again and nil is returned.
func (e *Engine) saveLinks(ctx context.Context, session *connector.Session, contact *models.Contact, gained []gainedLink) (*models.Contact, error) {
	for _, link := range gained {
		contact.Link(link.system, link.externalID)
	}
	err := e.store.Upsert(ctx, contact)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, ErrStaleContact) {
		return nil, err
	}

	fresh, err := e.store.GetContact(ctx, contact.TenantID, contact.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil || fresh.Deleted {
		e.discardCreated(ctx, session, contact, gained)
		return nil, nil
	}

	var orphaned []gainedLink
	for _, link := range gained {
		if current, linked := fresh.ExternalID(link.system); linked && current != link.externalID {
			orphaned = append(orphaned, link)
			continue
		}
		fresh.Link(link.system, link.externalID)
	}
	e.discardCreated(ctx, session, fresh, orphaned)

	if err := e.store.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// discardCreated deletes remote records created for a contact that can no
// longer own them. Failures are logged; the records stay unlinked.
func (e *Engine) discardCreated(ctx context.Context, session *connector.Session, contact *models.Contact, links []gainedLink) {
	for _, link := range links {
		if !link.created {
			continue
		}
		conn, ok := session.Get(link.system)
		if !ok {
			continue
		}

		err := e.call(ctx, link.system, "delete", func(ctx context.Context) error {
			return conn.Delete(ctx, link.externalID)
		})
		if err != nil && !errors.Is(err, connector.ErrNotFound) {
			e.logger.Warn("Failed to delete remote record of a removed contact",
				zap.String("tenant", contact.TenantID),
				zap.String("contact_id", contact.ID.String()),
				zap.String("system", link.system),
				zap.String("external_id", link.externalID),
				zap.Error(err),
			)
			continue
		}
		e.logger.Info("Deleted remote record of a removed contact",
			zap.String("tenant", contact.TenantID),
			zap.String("system", link.system),
			zap.String("external_id", link.externalID),
		)
	}
}
