// ABOUTME: Reconciliation engine running one sync cycle per tenant
// ABOUTME: Snapshot, inbound merge, outbound push and remote-deletion detection
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/metrics"
	"github.com/harperreed/crmsync/models"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config bounds connector work within a cycle.
type Config struct {
	// ConnectorTimeout applies to every single connector call.
	ConnectorTimeout time.Duration
	// PushConcurrency bounds parallel pushes per system.
	PushConcurrency int
}

func (c Config) withDefaults() Config {
	if c.ConnectorTimeout <= 0 {
		c.ConnectorTimeout = 15 * time.Second
	}
	if c.PushConcurrency <= 0 {
		c.PushConcurrency = 4
	}
	return c
}

// Engine reconciles the local store with every connector of a tenant.
type Engine struct {
	store    Store
	provider connector.Provider
	leaser   Leaser
	recorder RunRecorder
	metrics  metrics.Recorder
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	background sync.WaitGroup

	pendingMu sync.Mutex
	// pending holds contacts written locally whose immediate push was
	// deferred because a cycle held the tenant lease.
	pending map[string]map[uuid.UUID]struct{}
}

type Option func(*Engine)

func WithLeaser(l Leaser) Option { return func(e *Engine) { e.leaser = l } }

// WithRecorder overrides the run recorder. By default the store is used when
// it implements RunRecorder.
func WithRecorder(r RunRecorder) Option { return func(e *Engine) { e.recorder = r } }

func WithMetrics(m metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg.withDefaults() } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(store Store, provider connector.Provider, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		leaser:   NewLocalLeaser(),
		metrics:  metrics.Nop{},
		logger:   logger,
		cfg:      Config{}.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		pending:  make(map[string]map[uuid.UUID]struct{}),
	}
	if r, ok := store.(RunRecorder); ok {
		e.recorder = r
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle runs one full cycle for tenantID under the tenant lease. It
// returns ErrCycleInProgress if another cycle holds the lease. When the local
// store fails the cycle aborts and the partial summary is returned together
// with an error wrapping ErrStoreUnavailable.
func (e *Engine) RunCycle(ctx context.Context, tenantID string) (*Summary, error) {
	release, err := e.leaser.Acquire(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			e.metrics.IncLeaseContention()
		}
		return nil, err
	}
	defer release()

	c := newCycle(e, tenantID)
	c.logger.Info("Starting sync cycle")

	runErr := c.run(ctx)
	c.summary.FinishedAt = e.now()
	e.finish(ctx, c, runErr)

	if runErr != nil {
		c.logger.Error("Sync cycle aborted", zap.Error(runErr))
		return c.summary, runErr
	}

	c.logger.Info("Sync cycle complete",
		zap.Duration("duration", c.summary.Duration()),
		zap.Int("errors", c.summary.Errors()),
	)
	return c.summary, nil
}

// RunInBackground starts a cycle that outlives the caller's request. A held
// lease is not an error here: the running cycle covers the request.
func (e *Engine) RunInBackground(tenantID string) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		_, err := e.RunCycle(context.Background(), tenantID)
		if err != nil && !errors.Is(err, ErrCycleInProgress) {
			e.logger.Warn("Background sync failed", zap.String("tenant", tenantID), zap.Error(err))
		}
	}()
}

// Wait blocks until background cycles have finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

func (e *Engine) markPending(tenantID string, ids ...uuid.UUID) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	set := e.pending[tenantID]
	if set == nil {
		set = make(map[uuid.UUID]struct{})
		e.pending[tenantID] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

func (e *Engine) clearPending(tenantID string, id uuid.UUID) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	delete(e.pending[tenantID], id)
}

// takePending empties the tenant's deferred set and returns its ids.
func (e *Engine) takePending(tenantID string) []uuid.UUID {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	set := e.pending[tenantID]
	delete(e.pending, tenantID)

	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return ids
}

// call runs one connector operation under the per-call timeout.
func (e *Engine) call(ctx context.Context, system, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectorTimeout)
	defer cancel()

	err := fn(callCtx)
	result := "ok"
	if err != nil {
		result = connector.Kind(err)
	}
	e.metrics.IncConnectorCall(system, op, result)
	return err
}

func (e *Engine) finish(ctx context.Context, c *cycle, runErr error) {
	outcome := models.RunOutcomeCompleted
	if runErr != nil {
		outcome = models.RunOutcomeAborted
	}
	e.metrics.ObserveCycle(outcome, c.summary.Duration())

	for _, sys := range c.summary.Systems {
		e.metrics.AddContactChanges(sys.System, "local_created", sys.LocalCreated)
		e.metrics.AddContactChanges(sys.System, "local_updated", sys.LocalUpdated)
		e.metrics.AddContactChanges(sys.System, "remote_created", sys.RemoteCreated)
		e.metrics.AddContactChanges(sys.System, "remote_updated", sys.RemoteUpdated)
		e.metrics.AddContactChanges(sys.System, "linked", sys.Linked)
		e.metrics.AddContactChanges(sys.System, "unlinked", sys.Unlinked)
	}

	if e.recorder == nil {
		return
	}

	for _, sys := range c.summary.Systems {
		status, msg := models.SyncStatusIdle, ""
		switch {
		case runErr != nil:
			status, msg = models.SyncStatusError, runErr.Error()
		case sys.Unavailable:
			status = models.SyncStatusError
			if len(sys.Failures) > 0 {
				msg = sys.Failures[0]
			}
		}
		e.recordStatus(ctx, c.tenantID, sys.System, status, msg)
	}

	payload, err := json.Marshal(c.summary)
	if err != nil {
		c.logger.Warn("Failed to encode run summary", zap.Error(err))
		return
	}
	run := models.SyncRun{
		ID:         c.summary.RunID,
		TenantID:   c.tenantID,
		Outcome:    outcome,
		Summary:    string(payload),
		StartedAt:  c.summary.StartedAt,
		FinishedAt: c.summary.FinishedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.recorder.RecordRun(ctx, run); err != nil {
		c.logger.Warn("Failed to record sync run", zap.Error(err))
	}
}

func (e *Engine) recordStatus(ctx context.Context, tenantID, system, status, msg string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordSystemStatus(ctx, tenantID, system, status, msg); err != nil {
		e.logger.Warn("Failed to record sync status",
			zap.String("tenant", tenantID),
			zap.String("system", system),
			zap.Error(err),
		)
	}
}

// systemState is the per-system working set of one cycle.
type systemState struct {
	name        string
	summary     *SystemSummary
	conn        connector.Connector
	records     []connector.RemoteRecord
	listed      bool
	unavailable bool
	// seen holds every external id returned by list, plus ids created or
	// adopted during this cycle.
	seen map[string]struct{}
	// owners maps external id to the normalized email of the linked contact.
	owners map[string]string
	// firstLinked holds external ids linked by a merge during this cycle.
	// Their fields are reconciled from the next cycle on.
	firstLinked map[string]struct{}
}

func (s *systemState) markUnavailable(err error) {
	s.unavailable = true
	s.summary.Unavailable = true
	s.summary.fail("%s unavailable: %v", s.name, err)
}

func (s *systemState) count(res MergeResult) {
	if res.Linked {
		s.summary.Linked++
	}
	if res.FieldsUpdated {
		s.summary.LocalUpdated++
	}
}

type cycle struct {
	e        *Engine
	tenantID string
	logger   *zap.Logger
	summary  *Summary
	session  *connector.Session
	systems  map[string]*systemState

	contacts   map[string]*models.Contact // active, by normalized email
	order      []string
	tombstoned map[string]struct{}
}

func newCycle(e *Engine, tenantID string) *cycle {
	runID := ulid.Make().String()
	return &cycle{
		e:          e,
		tenantID:   tenantID,
		logger:     e.logger.With(zap.String("tenant", tenantID), zap.String("run_id", runID)),
		summary:    &Summary{RunID: runID, TenantID: tenantID, StartedAt: e.now()},
		systems:    make(map[string]*systemState),
		contacts:   make(map[string]*models.Contact),
		tombstoned: make(map[string]struct{}),
	}
}

func (c *cycle) run(ctx context.Context) error {
	c.openSession(ctx)

	if err := c.flushDeferred(ctx); err != nil {
		return err
	}
	if err := c.snapshot(ctx); err != nil {
		return err
	}

	c.fetch(ctx)

	for _, system := range c.session.Systems() {
		if err := c.inbound(ctx, c.systems[system]); err != nil {
			return err
		}
	}

	if err := c.outbound(ctx); err != nil {
		return err
	}
	if err := c.detectRemoteDeletions(ctx); err != nil {
		return err
	}

	return c.flushDeferred(ctx)
}

// flushDeferred pushes contacts written locally while a cycle held the lease.
// It runs before the snapshot and again at the end, so the local write is the
// last one each remote receives even when this cycle pushed an older copy.
func (c *cycle) flushDeferred(ctx context.Context) error {
	ids := c.e.takePending(c.tenantID)
	for i, id := range ids {
		report, err := c.e.pushContact(ctx, c.session, c.tenantID, id)
		if err != nil {
			c.e.markPending(c.tenantID, ids[i:]...)
			return storeFailure("push deferred contact", err)
		}

		for _, system := range report.Created {
			c.systems[system].summary.RemoteCreated++
		}
		for _, system := range report.Updated {
			c.systems[system].summary.RemoteUpdated++
		}
		for _, system := range report.Linked {
			c.systems[system].summary.Linked++
		}
		for system, msg := range report.Failures {
			st := c.systems[system]
			if st == nil {
				c.logger.Warn("Deferred push failed",
					zap.String("system", system),
					zap.String("contact_id", id.String()),
					zap.String("error", msg),
				)
				continue
			}
			st.summary.fail("%s deferred push of %s: %s", system, id, msg)
		}
	}
	return nil
}

// snapshot loads active contacts and the tombstoned email set. An email that
// also has an active contact (re-created locally) is not reserved.
func (c *cycle) snapshot(ctx context.Context) error {
	active, err := c.e.store.ListActive(ctx, c.tenantID)
	if err != nil {
		return storeFailure("list active contacts", err)
	}
	for i := range active {
		c.track(&active[i])
	}

	emails, err := c.e.store.ListTombstonedEmails(ctx, c.tenantID)
	if err != nil {
		return storeFailure("list tombstoned emails", err)
	}
	for _, email := range emails {
		key := models.NormalizeEmail(email)
		if _, ok := c.contacts[key]; !ok {
			c.tombstoned[key] = struct{}{}
		}
	}

	c.logger.Debug("Snapshot loaded",
		zap.Int("active", len(c.contacts)),
		zap.Int("tombstoned", len(c.tombstoned)),
	)
	return nil
}

// forget drops a contact from the working set and from the link index.
func (c *cycle) forget(contact *models.Contact) {
	key := contact.NormalizedEmail()
	if cur := c.contacts[key]; cur != nil && cur.ID == contact.ID {
		delete(c.contacts, key)
		c.order = slices.DeleteFunc(c.order, func(k string) bool { return k == key })
	}
	for system, id := range contact.ExternalIDs {
		if st := c.systems[system]; st != nil && st.owners[id] == key {
			delete(st.owners, id)
		}
	}
}

// replace swaps a working copy for the stored contact. A contact deleted in
// the meantime leaves the working set and its email becomes reserved.
func (c *cycle) replace(stale, fresh *models.Contact) {
	c.forget(stale)
	if fresh == nil || fresh.Deleted {
		c.tombstoned[stale.NormalizedEmail()] = struct{}{}
		return
	}
	c.track(fresh)
}

// refresh re-reads a contact the cycle holds a stale copy of. It returns nil
// when the contact was deleted since the snapshot.
func (c *cycle) refresh(ctx context.Context, stale *models.Contact) (*models.Contact, error) {
	fresh, err := c.e.store.GetContact(ctx, c.tenantID, stale.ID)
	if err != nil {
		return nil, storeFailure("re-read contact", err)
	}
	c.replace(stale, fresh)
	if fresh == nil || fresh.Deleted {
		return nil, nil
	}
	return fresh, nil
}

// track adds or replaces a contact in the working set and indexes its links.
func (c *cycle) track(contact *models.Contact) {
	key := contact.NormalizedEmail()
	if _, known := c.contacts[key]; !known {
		c.order = append(c.order, key)
	}
	c.contacts[key] = contact

	for system, id := range contact.ExternalIDs {
		if st := c.systems[system]; st != nil && id != "" {
			st.owners[id] = key
		}
	}
}

func (c *cycle) openSession(ctx context.Context) {
	c.session = c.e.provider.Open(ctx, c.tenantID)

	for _, system := range c.session.Systems() {
		st := &systemState{
			name:        system,
			summary:     &SystemSummary{System: system},
			seen:        make(map[string]struct{}),
			owners:      make(map[string]string),
			firstLinked: make(map[string]struct{}),
		}
		c.summary.Systems = append(c.summary.Systems, st.summary)
		c.systems[system] = st
		c.e.recordStatus(ctx, c.tenantID, system, models.SyncStatusSyncing, "")

		conn, ok := c.session.Get(system)
		if !ok {
			err := c.session.Failed[system]
			c.logger.Warn("System session failed", zap.String("system", system), zap.Error(err))
			st.markUnavailable(err)
			continue
		}
		st.conn = conn
	}
}

// fetch lists every available system concurrently.
func (c *cycle) fetch(ctx context.Context) {
	var g errgroup.Group
	for _, system := range c.session.Systems() {
		st := c.systems[system]
		if st.conn == nil {
			continue
		}
		g.Go(func() error {
			err := c.e.call(ctx, system, "list", func(ctx context.Context) error {
				records, err := st.conn.List(ctx)
				st.records = records
				return err
			})
			if err != nil {
				st.records = nil
				c.logger.Warn("Failed to list remote contacts", zap.String("system", system), zap.Error(err))
				st.markUnavailable(err)
				return nil
			}
			st.listed = true
			st.summary.Fetched = len(st.records)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *cycle) inbound(ctx context.Context, st *systemState) error {
	if !st.listed {
		return nil
	}

	for _, r := range st.records {
		st.seen[r.ExternalID] = struct{}{}

		key := models.NormalizeEmail(r.Email)
		if _, dead := c.tombstoned[key]; dead {
			st.summary.Skipped++
			continue
		}

		// An established link wins over an email match.
		contact := c.contacts[key]
		if owner, ok := st.owners[r.ExternalID]; ok {
			contact = c.contacts[owner]
		}

		var err error
		if contact == nil {
			err = c.createLocal(ctx, st, r)
		} else {
			err = c.mergeRemote(ctx, st, contact, r)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *cycle) createLocal(ctx context.Context, st *systemState, r connector.RemoteRecord) error {
	now := c.e.now()
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	contact := &models.Contact{
		ID:        uuid.New(),
		TenantID:  c.tenantID,
		Email:     strings.TrimSpace(r.Email),
		Name:      r.Name,
		Phone:     r.Phone,
		JobTitle:  r.JobTitle,
		Pronouns:  r.Pronouns,
		Sources:   []string{models.SystemLocal},
		CreatedAt: now,
		UpdatedAt: updatedAt,
	}
	if contact.Name == "" {
		contact.Name = contact.Email
	}
	if contact.Phone == "" {
		contact.Phone = models.DefaultPhone
	}
	contact.Link(st.name, r.ExternalID)

	if err := c.persist(ctx, contact); err != nil {
		if isConflict(err) {
			return c.resolveConflict(ctx, st, nil, r)
		}
		return err
	}

	c.track(contact)
	st.summary.LocalCreated++
	c.logger.Debug("Created local contact from remote",
		zap.String("system", st.name),
		zap.String("external_id", r.ExternalID),
	)
	return nil
}

func (c *cycle) mergeRemote(ctx context.Context, st *systemState, contact *models.Contact, r connector.RemoteRecord) error {
	before := contact.Clone()
	res := Merge(contact, st.name, r)

	if res.Duplicate {
		st.summary.Skipped++
		return nil
	}
	if !res.Changed() {
		return nil
	}

	if err := c.persist(ctx, contact); err != nil {
		if isConflict(err) {
			*contact = *before
			return c.resolveConflict(ctx, st, contact, r)
		}
		return err
	}

	c.merged(st, contact, r, res)
	return nil
}

// resolveConflict re-reads the contact a rejected write was about and merges r
// again: by id when the cycle held a stale copy, by email when a concurrent
// writer created the email first. A second conflict is counted as an error
// for this record only.
func (c *cycle) resolveConflict(ctx context.Context, st *systemState, stale *models.Contact, r connector.RemoteRecord) error {
	var fresh *models.Contact
	if stale != nil {
		var err error
		fresh, err = c.refresh(ctx, stale)
		if err != nil {
			return err
		}
		if fresh == nil {
			// Deleted locally while the cycle ran.
			st.summary.Skipped++
			return nil
		}
	} else {
		found, err := c.e.store.FindActiveByEmail(ctx, c.tenantID, r.Email)
		if err != nil {
			return storeFailure("re-read contact", err)
		}
		if found == nil {
			st.summary.fail("%s: unresolved write conflict for %s", st.name, r.Email)
			return nil
		}
		if cur := c.contacts[found.NormalizedEmail()]; cur != nil {
			c.forget(cur)
		}
		c.track(found)
		fresh = found
	}

	before := fresh.Clone()
	res := Merge(fresh, st.name, r)
	if res.Duplicate {
		st.summary.Skipped++
		return nil
	}
	if !res.Changed() {
		return nil
	}

	if err := c.persist(ctx, fresh); err != nil {
		if isConflict(err) {
			*fresh = *before
			st.summary.fail("%s: repeated write conflict for %s", st.name, r.Email)
			return nil
		}
		return err
	}
	c.merged(st, fresh, r, res)
	return nil
}

// merged records a stored merge result in the working set and the summary.
func (c *cycle) merged(st *systemState, contact *models.Contact, r connector.RemoteRecord, res MergeResult) {
	st.owners[r.ExternalID] = contact.NormalizedEmail()
	if res.Linked {
		st.firstLinked[r.ExternalID] = struct{}{}
	}
	st.count(res)
}

// persist upserts the contact. Write conflicts and stale writes are returned
// as-is; anything else is a store failure.
func (c *cycle) persist(ctx context.Context, contact *models.Contact) error {
	err := c.e.store.Upsert(ctx, contact)
	if err == nil || isConflict(err) {
		return err
	}
	return storeFailure("upsert contact", err)
}

type systemPush struct {
	st      *systemState
	pusher  *pusher
	jobs    []pushJob
	results []pushResult
	err     error
}

// outbound pushes unlinked contacts and locally newer updates. Systems run in
// parallel; results are applied to contacts by this goroutine alone.
func (c *cycle) outbound(ctx context.Context) error {
	var pushes []*systemPush
	for _, system := range c.session.Systems() {
		st := c.systems[system]
		if st.conn == nil || st.unavailable {
			continue
		}

		jobs := c.updateJobs(st)
		for _, key := range c.order {
			contact := c.contacts[key]
			if _, linked := contact.ExternalID(system); linked {
				continue
			}
			jobs = append(jobs, pushJob{
				key:       key,
				contactID: contact.ID,
				kind:      pushCreate,
				fields:    contact.Fields(),
			})
		}
		if len(jobs) == 0 {
			continue
		}
		pushes = append(pushes, &systemPush{st: st, pusher: newPusher(c.e, st.conn), jobs: jobs})
	}

	var g errgroup.Group
	for _, sp := range pushes {
		g.Go(func() error {
			sp.results, sp.err = sp.pusher.pushAll(ctx, sp.jobs, c.e.cfg.PushConcurrency)
			return nil
		})
	}
	_ = g.Wait()

	gained := make(map[string][]gainedLink)
	for _, sp := range pushes {
		if sp.err != nil {
			sp.st.markUnavailable(sp.err)
		}
		for _, res := range sp.results {
			if link, ok := c.applyPush(sp.st, res); ok {
				gained[res.job.key] = append(gained[res.job.key], link)
			}
		}
	}

	for _, key := range slices.Clone(c.order) {
		links := gained[key]
		contact := c.contacts[key]
		if len(links) == 0 || contact == nil {
			continue
		}

		saved, err := c.e.saveLinks(ctx, c.session, contact, links)
		if err != nil {
			if !isConflict(err) {
				return storeFailure("save pushed links", err)
			}
			c.logger.Warn("Write conflict saving pushed links",
				zap.String("contact_id", contact.ID.String()),
				zap.Error(err),
			)
			for _, link := range links {
				c.systems[link.system].summary.fail("%s: write conflict saving link %s for %s: %v",
					link.system, link.externalID, contact.Email, err)
			}
			// The working copy holds links that were not stored.
			if _, err := c.refresh(ctx, contact); err != nil {
				return err
			}
			continue
		}
		if saved != contact {
			c.replace(contact, saved)
		}
	}
	return nil
}

// updateJobs derives the update pushes for st from the working set as it
// stands after every inbound merge. A remote copy only receives the contact's
// current fields, and only while the contact is newer than that copy.
func (c *cycle) updateJobs(st *systemState) []pushJob {
	var jobs []pushJob
	for _, r := range st.records {
		if _, first := st.firstLinked[r.ExternalID]; first {
			continue
		}
		key, ok := st.owners[r.ExternalID]
		if !ok {
			continue
		}
		contact := c.contacts[key]
		if contact == nil {
			continue
		}
		if id, _ := contact.ExternalID(st.name); id != r.ExternalID {
			continue
		}
		if !contact.UpdatedAt.After(r.UpdatedAt) || !fieldsDiffer(contact.Fields(), r.Fields()) {
			continue
		}
		jobs = append(jobs, pushJob{
			key:        key,
			contactID:  contact.ID,
			kind:       pushUpdate,
			externalID: r.ExternalID,
			fields:     contact.Fields(),
		})
	}
	return jobs
}

// applyPush folds one push result into the working set and returns the link
// the contact gained, if any.
func (c *cycle) applyPush(st *systemState, res pushResult) (gainedLink, bool) {
	contact := c.contacts[res.job.key]
	if contact == nil {
		return gainedLink{}, false
	}

	switch res.outcome {
	case outcomeCreated:
		contact.Link(st.name, res.externalID)
		st.seen[res.externalID] = struct{}{}
		st.owners[res.externalID] = res.job.key
		st.summary.RemoteCreated++
		return gainedLink{system: st.name, externalID: res.externalID, created: true}, true

	case outcomeAdopted:
		if owner, ok := st.owners[res.externalID]; ok && owner != res.job.key {
			st.summary.Skipped++
			return gainedLink{}, false
		}
		contact.Link(st.name, res.externalID)
		st.seen[res.externalID] = struct{}{}
		st.owners[res.externalID] = res.job.key
		st.summary.Linked++
		return gainedLink{system: st.name, externalID: res.externalID}, true

	case outcomeUpdated:
		st.summary.RemoteUpdated++

	case outcomeFailed:
		if !connector.IsUnavailable(res.err) {
			op := "create"
			if res.job.kind == pushUpdate {
				op = "update"
			}
			c.logger.Warn("Push failed",
				zap.String("system", st.name),
				zap.String("op", op),
				zap.String("contact_id", res.job.contactID.String()),
				zap.Error(res.err),
			)
			st.summary.fail("%s %s %s: %v", st.name, op, res.job.fields.Email, res.err)
		}
	}
	return gainedLink{}, false
}

// detectRemoteDeletions unlinks contacts whose remote record is gone. It only
// trusts systems whose list succeeded and stayed reachable this cycle.
func (c *cycle) detectRemoteDeletions(ctx context.Context) error {
	for _, system := range c.session.Systems() {
		st := c.systems[system]
		if !st.listed || st.unavailable {
			continue
		}

		for _, key := range slices.Clone(c.order) {
			contact := c.contacts[key]
			if contact == nil {
				continue
			}
			id, linked := contact.ExternalID(system)
			if !linked {
				continue
			}
			if _, present := st.seen[id]; present {
				continue
			}
			if err := c.unlink(ctx, st, contact, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// unlink removes a vanished remote record from the contact. A stale copy is
// re-read once and unlinked again if the stored contact still has the link.
func (c *cycle) unlink(ctx context.Context, st *systemState, contact *models.Contact, id string) error {
	for attempt := 0; ; attempt++ {
		contact.Unlink(st.name)
		delete(st.owners, id)

		err := c.persist(ctx, contact)
		if err == nil {
			st.summary.Unlinked++
			c.logger.Debug("Unlinked deleted remote record",
				zap.String("system", st.name),
				zap.String("external_id", id),
			)
			return nil
		}
		if !isConflict(err) {
			return err
		}
		if attempt > 0 {
			st.summary.fail("%s: write conflict unlinking %s", st.name, contact.Email)
			return nil
		}

		fresh, err := c.refresh(ctx, contact)
		if err != nil {
			return err
		}
		if fresh == nil {
			return nil
		}
		if current, _ := fresh.ExternalID(st.name); current != id {
			return nil
		}
		contact = fresh
	}
}
